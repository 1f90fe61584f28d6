package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tilecraft.ai/internal/persistence/snapshot"
	"tilecraft.ai/internal/sim/blocks"
)

// rollbackCmd undoes audited block mutations inside a rectangle and writes
// the result as a new snapshot.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	rect := fs.String("rect", "", "rectangle filter: x1,y1:x2,y2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback changes since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback changes up to tick (inclusive, optional; defaults to snapshot tick)")
	actor := fs.String("actor", "", "only rollback this player's changes (optional)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}
	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	path, err := resolveSnapshot(worldDir, *snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}
	recs, err := readAudit(worldDir, auditFilter{Since: *sinceTick, To: endTick, Min: min, Max: max, Actor: strings.TrimSpace(*actor)})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}

	applied, skipped := applyRollback(&snap, recs)
	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: snapshot=%s tick=%d rect=%s since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(path), snap.Header.Tick, *rect, *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

type auditFilter struct {
	Since, To uint64
	Min, Max  [2]int
	Actor     string
}

func (f auditFilter) match(m blocks.Mutation) bool {
	if m.Tick < f.Since || m.Tick > f.To {
		return false
	}
	if f.Actor != "" && m.Actor != f.Actor {
		return false
	}
	return m.X >= f.Min[0] && m.X <= f.Max[0] && m.Y >= f.Min[1] && m.Y <= f.Max[1]
}

type auditRec struct {
	Seq   uint64
	Entry blocks.Mutation
}

// readAudit returns matching mutations newest first.
func readAudit(worldDir string, f auditFilter) ([]auditRec, error) {
	dir := filepath.Join(worldDir, "audit")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []auditRec
	var seq uint64
	for _, name := range names {
		path := filepath.Join(dir, name)
		n, err := scanAudit(path, func(m blocks.Mutation) {
			seq++
			if f.match(m) {
				out = append(out, auditRec{Seq: seq, Entry: m})
			}
		})
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", name, n, err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

func scanAudit(path string, fn func(blocks.Mutation)) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	dec, err := zstd.NewReader(fh)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var m blocks.Mutation
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			return line, err
		}
		fn(m)
	}
	return line, sc.Err()
}

// applyRollback restores each entry's From block, newest entry first, so
// the oldest change in the window wins.
func applyRollback(snap *snapshot.WorldV1, recs []auditRec) (applied, skipped int) {
	index := make(map[string]uint16, len(snap.Palette))
	for i, name := range snap.Palette {
		index[name] = uint16(i)
	}
	w, h := snap.Header.Width, snap.Header.Height
	for _, r := range recs {
		m := r.Entry
		idx, ok := index[m.From]
		if !ok || m.X < 0 || m.Y < 0 || m.X >= w || m.Y >= h {
			skipped++
			continue
		}
		snap.Tiles[m.Y*w+m.X] = idx
		applied++
	}
	return applied, skipped
}

func parseRect(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

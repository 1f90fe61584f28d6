package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tilecraft.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "players":
			playersCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// snapshotCmd prints the header and block histogram of a snapshot.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path, err := resolveSnapshot(filepath.Join(*dataDir, "worlds", *worldID), *snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot=%s tick=%d size=%dx%d seed=%d containers=%d\n",
		filepath.Base(path), snap.Header.Tick, snap.Header.Width, snap.Header.Height, snap.Seed, len(snap.Containers))
	for _, row := range blockHistogram(snap) {
		fmt.Printf("  %-16s %d\n", row.name, row.count)
	}
}

type histRow struct {
	name  string
	count int
}

func blockHistogram(snap snapshot.WorldV1) []histRow {
	counts := map[uint16]int{}
	for _, t := range snap.Tiles {
		counts[t]++
	}
	out := make([]histRow, 0, len(counts))
	for idx, n := range counts {
		name := fmt.Sprintf("#%d", idx)
		if int(idx) < len(snap.Palette) {
			name = snap.Palette[idx]
		}
		out = append(out, histRow{name: name, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

func resolveSnapshot(worldDir, explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}
	p, err := snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", fmt.Errorf("no snapshot found; provide -snapshot or run server until it writes one")
	}
	return p, nil
}

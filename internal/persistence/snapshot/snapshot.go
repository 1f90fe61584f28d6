package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`

	// NextEntityID is the highest entity id handed out before the save.
	NextEntityID uint64 `json:"next_entity_id,omitempty"`
}

// WorldV1 holds what is needed to restart a world: tiles and containers.
// Players live in the player store; transient entities are not saved.
type WorldV1 struct {
	Header Header `json:"header"`

	Seed          int64    `json:"seed"`
	Palette       []string `json:"palette"`
	PaletteDigest string   `json:"palette_digest"`
	// Tiles is row-major, Width*Height long.
	Tiles []uint16 `json:"tiles"`

	Containers []ContainerV1 `json:"containers"`
}

type ContainerV1 struct {
	Kind     string    `json:"kind"`
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Slots    []StackV1 `json:"slots"`
	Progress int       `json:"progress,omitempty"`
	Burn     int       `json:"burn,omitempty"`
}

type StackV1 struct {
	Item      string `json:"item,omitempty"`
	Count     int    `json:"count,omitempty"`
	Uses      int    `json:"uses,omitempty"`
	TotalUses int    `json:"total_uses,omitempty"`
	Bonus     bool   `json:"bonus,omitempty"`
}

// Validate checks the tile payload against the header dimensions.
func (s *WorldV1) Validate() error {
	if s.Header.Version != Version {
		return fmt.Errorf("snapshot: unsupported version %d", s.Header.Version)
	}
	if s.Header.Width <= 0 || s.Header.Height <= 0 {
		return fmt.Errorf("snapshot: bad dimensions %dx%d", s.Header.Width, s.Header.Height)
	}
	if len(s.Tiles) != s.Header.Width*s.Header.Height {
		return fmt.Errorf("snapshot: %d tiles for %dx%d", len(s.Tiles), s.Header.Width, s.Header.Height)
	}
	return nil
}

// FileName is the snapshot name for a tick; names sort by tick.
func FileName(tick uint64) string {
	return fmt.Sprintf("%020d.snap.zst", tick)
}

func WriteSnapshot(path string, snap WorldV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, &snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap *WorldV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (WorldV1, error) {
	var snap WorldV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The header line is for tools that only need the tick; gob repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return snap, err
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// Latest returns the newest snapshot in dir, or "" when there is none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	type cand struct {
		tick uint64
		path string
	}
	var cands []cand
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{tick: n, path: filepath.Join(dir, name)})
	}
	if len(cands) == 0 {
		return "", nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].tick < cands[j].tick })
	return cands[len(cands)-1].path, nil
}

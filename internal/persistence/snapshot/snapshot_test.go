package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func sample(tick uint64) WorldV1 {
	return WorldV1{
		Header:  Header{Version: Version, Tick: tick, Width: 4, Height: 2},
		Seed:    42,
		Palette: []string{"AIR", "DIRT", "STONE"},
		Tiles:   []uint16{0, 0, 1, 0, 2, 2, 2, 2},
		Containers: []ContainerV1{{
			Kind: "CHEST", X: 2, Y: 0,
			Slots: []StackV1{{Item: "COAL", Count: 3}, {}, {Item: "WOOD_PICKAXE", Count: 1, Uses: 4, TotalUses: 90, Bonus: true}},
		}},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(120))
	if err := WriteSnapshot(path, sample(120)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Header.Tick != 120 || got.Seed != 42 || len(got.Tiles) != 8 || got.Tiles[2] != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if len(got.Containers) != 1 || !got.Containers[0].Slots[2].Bonus {
		t.Fatalf("containers: %+v", got.Containers)
	}
	h, err := ReadHeader(path)
	if err != nil || h.Tick != 120 || h.Width != 4 {
		t.Fatalf("ReadHeader: %+v err=%v", h, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestReadSnapshot_RejectsBadTiles(t *testing.T) {
	dir := t.TempDir()
	s := sample(1)
	s.Tiles = s.Tiles[:5]
	path := filepath.Join(dir, FileName(1))
	if err := WriteSnapshot(path, s); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if p, err := Latest(filepath.Join(dir, "missing")); err != nil || p != "" {
		t.Fatalf("missing dir: %q %v", p, err)
	}
	for _, tick := range []uint64{300, 20, 1000} {
		if err := WriteSnapshot(filepath.Join(dir, FileName(tick)), sample(tick)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Latest(dir)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if filepath.Base(p) != FileName(1000) {
		t.Fatalf("latest=%s", p)
	}
}

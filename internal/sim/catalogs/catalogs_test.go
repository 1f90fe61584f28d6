package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Blocks.Palette[0] != "AIR" {
		t.Fatalf("palette[0]=%q want AIR", c.Blocks.Palette[0])
	}
	if c.Blocks.PaletteDigest == "" || c.Items.DefsDigest == "" {
		t.Fatalf("missing digests")
	}
	door := c.Blocks.Defs["DOOR_BOTTOM"]
	if door.Companion == nil || door.Companion.DY != -1 || door.Companion.Block != "DOOR_TOP" {
		t.Fatalf("door companion: %+v", door.Companion)
	}
	if it, ok := c.Item("WOOD_PICKAXE"); !ok || it.StackLimit() != 1 {
		t.Fatalf("tool should not stack: %+v ok=%v", it, ok)
	}
	if c.Class("NOPE").ID != DefaultClass {
		t.Fatalf("unknown class should fall back to %s", DefaultClass)
	}
	if _, ok := c.Mobs.ByID["slime"]; !ok {
		t.Fatalf("slime mob missing")
	}
}

func TestBlock_ByPaletteIndex(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	idx, ok := c.BlockIndex("STONE")
	if !ok {
		t.Fatalf("STONE missing")
	}
	d, ok := c.Block(idx)
	if !ok || d.ID != "STONE" || !c.IsSolid(idx) {
		t.Fatalf("Block(%d)=%+v ok=%v", idx, d, ok)
	}
	if _, ok := c.Block(uint16(len(c.Blocks.Palette))); ok {
		t.Fatalf("out of range index should miss")
	}
}

func TestLoad_RejectsUnknownCompanion(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("blocks.json", `[{"id":"AIR"},{"id":"DOOR","breakable":true,"companion":{"dx":0,"dy":-1,"block":"GHOST"}}]`)
	write("items.json", `[]`)
	write("recipes.json", `[]`)
	write("classes.json", `[{"id":"ADVENTURER","break_speed":1}]`)

	if _, err := Load(dir); err == nil {
		t.Fatalf("expected companion validation error")
	}
}

package encoding

import (
	"errors"
	"testing"
)

func TestTiles_RoundTrip(t *testing.T) {
	const w, h = 16, 8
	in := make([]uint16, w*h)
	for x := 0; x < w; x++ {
		for y := 4; y < h; y++ {
			in[y*w+x] = 3
		}
	}
	in[5*w+7] = 9

	out, err := DecodeTiles(EncodeTiles(in), w, h)
	if err != nil {
		t.Fatalf("DecodeTiles: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestTiles_WrongDims(t *testing.T) {
	enc := EncodeTiles(make([]uint16, 12))
	if _, err := DecodeTiles(enc, 4, 4); !errors.Is(err, ErrTileCount) {
		t.Fatalf("short payload: err=%v", err)
	}
	if _, err := DecodeTiles(enc, 2, 2); !errors.Is(err, ErrTileCount) {
		t.Fatalf("long payload: err=%v", err)
	}
}

func TestTiles_Empty(t *testing.T) {
	out, err := DecodeTiles(EncodeTiles(nil), 0, 0)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty: out=%v err=%v", out, err)
	}
}

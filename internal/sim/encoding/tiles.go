package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrTileCount = errors.New("tile payload length mismatch")

// EncodeTiles packs a row-major tile grid as base64 of (tile, run) uvarint pairs.
// Runs cross row boundaries; the decoder needs the dimensions to validate.
func EncodeTiles(tiles []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	for i := 0; i < len(tiles); {
		t := tiles[i]
		j := i + 1
		for j < len(tiles) && tiles[j] == t {
			j++
		}
		put(uint64(t))
		put(uint64(j - i))
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeTiles reverses EncodeTiles and requires exactly w*h tiles.
func DecodeTiles(payload string, w, h int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("tiles: %w", err)
	}
	want := w * h
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		t, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("tiles: bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("tiles: bad varint at %d", i)
		}
		i += n
		if t > 0xFFFF {
			return nil, fmt.Errorf("tiles: id too large: %d", t)
		}
		if run == 0 || uint64(len(out))+run > uint64(want) {
			return nil, ErrTileCount
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(t))
		}
	}
	if len(out) != want {
		return nil, ErrTileCount
	}
	return out, nil
}

package tiles

import "math/rand"

// Layers names the palette indices used by the bootstrap fill.
type Layers struct {
	Grass, Dirt, Stone, Bedrock uint16
	Coal, Iron                  uint16
	Log, Leaves, Flower         uint16
}

// Biome names returned by BiomeAt.
const (
	BiomePlains = "PLAINS"
	BiomeForest = "FOREST"
	BiomeCavern = "CAVERN"
)

// Fill writes a flat layered world: grass at surface, a few dirt rows, stone
// with ore pockets below, bedrock on the last row, and scattered trees.
func Fill(g *Grid, surface int, l Layers, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	w, h := g.Width(), g.Height()
	for x := 0; x < w; x++ {
		for y := surface; y < h; y++ {
			var t uint16
			switch {
			case y == h-1:
				t = l.Bedrock
			case y == surface:
				t = l.Grass
			case y <= surface+4:
				t = l.Dirt
			default:
				t = l.Stone
				r := rng.Intn(1000)
				if y > surface+20 && r < 12 {
					t = l.Iron
				} else if r < 30 {
					t = l.Coal
				}
			}
			g.SetTile(x, y, t)
		}
	}
	if surface < 7 {
		return
	}
	for x := 2; x < w-2; x++ {
		if BiomeAt(x, surface-1, surface) == BiomeForest && rng.Intn(100) < 12 {
			height := 3 + rng.Intn(3)
			for k := 1; k <= height; k++ {
				g.SetTile(x, surface-k, l.Log)
			}
			g.SetTile(x, surface-height-1, l.Leaves)
			x += 3
			continue
		}
		if rng.Intn(100) < 5 {
			g.SetTile(x, surface-1, l.Flower)
		}
	}
}

// BiomeAt is a pure function of position: deep tiles are caverns, the surface
// alternates 64-column plains and forest bands.
func BiomeAt(x, y, surface int) string {
	if y > surface+20 {
		return BiomeCavern
	}
	if (x/64)%2 == 1 {
		return BiomeForest
	}
	return BiomePlains
}

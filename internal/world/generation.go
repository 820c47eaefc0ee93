// World generation using layered simplex noise.
// Produces the corner height field the map is built from, then marks grass
// from an independent moisture layer.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Rows     int   // Tile rows
	Cols     int   // Tile columns
	Seed     int64 // Random seed (0 = random)
	Levels   int   // Number of discrete height levels
	SeaLevel int   // Corners at or below this level are under water
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Rows:     128,
		Cols:     128,
		Seed:     0,
		Levels:   8,
		SeaLevel: 1,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Rows:     16,
		Cols:     16,
		Seed:     42,
		Levels:   6,
		SeaLevel: 0,
	}
}

// GenerateHeights samples a (rows+1)×(cols+1) grid of integer corner heights
// in [0, Levels).
func GenerateHeights(cfg GenConfig) [][]int {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	levels := cfg.Levels
	if levels < 1 {
		levels = 1
	}

	elevNoise := opensimplex.NewNormalized(seed)

	heights := make([][]int, cfg.Rows+1)
	for r := range heights {
		heights[r] = make([]int, cfg.Cols+1)
		for c := range heights[r] {
			elev := octaveNoise(elevNoise, float64(c), float64(r), 4, 0.04, 0.5)
			// Flatten the middle band so there is buildable land.
			elev = terrace(elev, 0.15)
			h := int(math.Floor(elev * float64(levels)))
			if h >= levels {
				h = levels - 1
			}
			if h < 0 {
				h = 0
			}
			heights[r][c] = h
		}
	}
	return heights
}

// Generate creates a complete map with terrain and flatness.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
		cfg.Seed = seed
	}

	m := NewMap(GenerateHeights(cfg), cfg.SeaLevel)

	moistNoise := opensimplex.NewNormalized(seed + 1)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			t := &m.Tiles[r][c]
			if t.Terrain == TerrainWater {
				continue
			}
			if octaveNoise(moistNoise, float64(c), float64(r), 3, 0.06, 0.5) > 0.55 {
				t.Terrain = TerrainGrass
			}
		}
	}
	return m
}

// terrace pulls values within width of 0.5 toward 0.5.
func terrace(v, width float64) float64 {
	if math.Abs(v-0.5) < width {
		return 0.5
	}
	return v
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			counts[m.Tiles[r][c].Terrain]++
		}
	}
	return counts
}

// FlatTiles counts tiles whose corners share one height.
func FlatTiles(m *Map) int {
	n := 0
	for r := range m.Tiles {
		for c := range m.Tiles[r] {
			if m.Tiles[r][c].IsFlat {
				n++
			}
		}
	}
	return n
}

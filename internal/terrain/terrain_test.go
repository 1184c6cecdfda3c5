package terrain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrainroute/internal/config"
)

func testTerrainConfig() config.TerrainConfig {
	cfg := config.Default().Terrain
	cfg.Width = 32
	cfg.Depth = 24
	return cfg
}

func TestHeightFieldIsDeterministic(t *testing.T) {
	a, err := NewHeightField(testTerrainConfig())
	require.NoError(t, err)
	b, err := NewHeightField(testTerrainConfig())
	require.NoError(t, err)

	for x := 0.0; x <= 32; x += 0.75 {
		for z := 0.0; z <= 24; z += 1.25 {
			require.Equal(t, a.Height(x, z), b.Height(x, z), "height at (%v,%v)", x, z)
		}
	}
}

func TestHeightFieldStaysWithinAmplitudeSum(t *testing.T) {
	field, err := NewHeightField(testTerrainConfig())
	require.NoError(t, err)

	maxHeight := 0.0
	for _, octave := range field.Octaves() {
		maxHeight += octave.Amplitude
	}
	for x := -10.0; x <= 40; x += 0.5 {
		for z := -10.0; z <= 40; z += 0.5 {
			h := field.Height(x, z)
			require.GreaterOrEqual(t, h, 0.0)
			require.LessOrEqual(t, h, maxHeight)
		}
	}
}

func TestHeightFieldSeedChangesTerrain(t *testing.T) {
	cfg := testTerrainConfig()
	a, err := NewHeightField(cfg)
	require.NoError(t, err)
	cfg.Seed++
	b, err := NewHeightField(cfg)
	require.NoError(t, err)

	differs := false
	for x := 0.0; x < 32 && !differs; x += 0.5 {
		differs = a.Height(x, 3.3) != b.Height(x, 3.3)
	}
	assert.True(t, differs, "changing the seed should change the terrain")
}

func TestHeightFieldIsContinuous(t *testing.T) {
	field, err := NewHeightField(testTerrainConfig())
	require.NoError(t, err)

	// Neighbouring fractional samples should not jump.
	for x := 0.0; x < 32; x += 0.37 {
		delta := math.Abs(field.Height(x, 5) - field.Height(x+0.001, 5))
		require.Less(t, delta, 0.05, "discontinuity near x=%v", x)
	}
}

func TestNewHeightFieldRejectsInvalidConfig(t *testing.T) {
	cfg := testTerrainConfig()
	cfg.Octaves = nil
	_, err := NewHeightField(cfg)
	require.Error(t, err)
}

func TestNewGridSamplesEveryCoordinate(t *testing.T) {
	field := HeightFunc(func(x, z float64) float64 { return x*10 + z })
	grid, err := NewGrid(field, 3, 2, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 3, grid.Width())
	assert.Equal(t, 2, grid.Depth())
	assert.Equal(t, 12, grid.Len())

	for row := 0; row <= 3; row++ {
		for col := 0; col <= 2; col++ {
			node, ok := grid.Node(Cell{Row: row, Col: col})
			require.True(t, ok)
			assert.Equal(t, float64(row*10+col)*0.5, node.Height)
			assert.Equal(t, Cell{Row: row, Col: col}, grid.CellAt(grid.Index(node.Cell)))
		}
	}
}

func TestGridRejectsOutOfRangeCells(t *testing.T) {
	grid, err := NewGrid(HeightFunc(func(x, z float64) float64 { return 0 }), 2, 2, 1)
	require.NoError(t, err)

	for _, cell := range []Cell{{-1, 0}, {0, -1}, {3, 0}, {0, 3}} {
		_, ok := grid.Node(cell)
		assert.False(t, ok, "cell %v should be outside", cell)
	}
	_, ok := grid.Node(Cell{Row: 2, Col: 2})
	assert.True(t, ok)
}

func TestNewGridValidatesInput(t *testing.T) {
	_, err := NewGrid(HeightFunc(func(x, z float64) float64 { return 0 }), 0, 4, 1)
	require.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = NewGridFromHeights(1, 1, []float64{0, 0, 0})
	require.Error(t, err)

	_, err = NewGridFromHeights(1, 1, []float64{0, math.NaN(), 0, 0})
	require.Error(t, err)
}

func TestGridFingerprintTracksHeights(t *testing.T) {
	heights := []float64{0, 1, 2, 3}
	a, err := NewGridFromHeights(1, 1, heights)
	require.NoError(t, err)
	b, err := NewGridFromHeights(1, 1, heights)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	heights[3] = 3.5
	c, err := NewGridFromHeights(1, 1, heights)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	parsed, err := ParseFingerprint(a.Fingerprint().String())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), parsed)
	assert.False(t, parsed.IsZero())
}

func TestGridHeightsReturnsCopy(t *testing.T) {
	grid, err := NewGridFromHeights(1, 1, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	heights := grid.Heights()
	heights[0] = 99
	assert.Equal(t, 1.0, grid.HeightAt(Cell{}))
}

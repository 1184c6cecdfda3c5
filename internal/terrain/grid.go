package terrain

import (
	"errors"
	"fmt"
	"math"
)

// Cell identifies a grid node by its integer coordinates. It is the identity
// key for everything that stores nodes in sets or maps.
type Cell struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Node is a grid cell together with its precomputed height.
type Node struct {
	Cell
	Height float64
}

// Grid owns one Node per integer coordinate pair in [0,Width]x[0,Depth].
// Heights are fixed at construction; a Grid is immutable afterwards.
type Grid struct {
	width       int
	depth       int
	heights     []float64
	fingerprint Fingerprint
}

var ErrInvalidDimensions = errors.New("terrain: grid dimensions must be positive")

// NewGrid samples field at every integer coordinate and multiplies the result
// by scale.
func NewGrid(field HeightSampler, width, depth int, scale float64) (*Grid, error) {
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, depth)
	}
	if field == nil {
		return nil, errors.New("terrain: nil height sampler")
	}
	heights := make([]float64, (width+1)*(depth+1))
	for row := 0; row <= width; row++ {
		base := row * (depth + 1)
		for col := 0; col <= depth; col++ {
			heights[base+col] = field.Height(float64(row), float64(col)) * scale
		}
	}
	return newGrid(width, depth, heights)
}

// NewGridFromHeights wraps a row-major height slice of length
// (width+1)*(depth+1). The slice is copied.
func NewGridFromHeights(width, depth int, heights []float64) (*Grid, error) {
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, depth)
	}
	if want := (width + 1) * (depth + 1); len(heights) != want {
		return nil, fmt.Errorf("terrain: expected %d heights, got %d", want, len(heights))
	}
	return newGrid(width, depth, append([]float64(nil), heights...))
}

func newGrid(width, depth int, heights []float64) (*Grid, error) {
	for i, h := range heights {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return nil, fmt.Errorf("terrain: non-finite height at index %d", i)
		}
	}
	g := &Grid{width: width, depth: depth, heights: heights}
	g.fingerprint = fingerprintHeights(width, depth, heights)
	return g, nil
}

// Width is the largest valid row index.
func (g *Grid) Width() int { return g.width }

// Depth is the largest valid column index.
func (g *Grid) Depth() int { return g.depth }

// Len is the number of nodes in the grid.
func (g *Grid) Len() int { return len(g.heights) }

func (g *Grid) Contains(c Cell) bool {
	return c.Row >= 0 && c.Col >= 0 && c.Row <= g.width && c.Col <= g.depth
}

// Index maps a contained cell to its row-major position.
func (g *Grid) Index(c Cell) int {
	return c.Row*(g.depth+1) + c.Col
}

// CellAt is the inverse of Index.
func (g *Grid) CellAt(index int) Cell {
	return Cell{Row: index / (g.depth + 1), Col: index % (g.depth + 1)}
}

// Node returns the node at c, or false if c lies outside the grid.
func (g *Grid) Node(c Cell) (Node, bool) {
	if !g.Contains(c) {
		return Node{}, false
	}
	return Node{Cell: c, Height: g.heights[g.Index(c)]}, true
}

// HeightAt returns the height at a cell that is known to be contained.
func (g *Grid) HeightAt(c Cell) float64 {
	return g.heights[g.Index(c)]
}

// Heights returns a copy of the row-major height data.
func (g *Grid) Heights() []float64 {
	return append([]float64(nil), g.heights...)
}

// Fingerprint identifies the grid contents; equal grids share a fingerprint.
func (g *Grid) Fingerprint() Fingerprint {
	return g.fingerprint
}

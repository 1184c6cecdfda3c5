package terrain

import (
	"fmt"

	"terrainroute/internal/config"
)

// HeightSampler maps continuous grid coordinates to an elevation.
type HeightSampler interface {
	Height(x, z float64) float64
}

// HeightFunc adapts a plain function to HeightSampler.
type HeightFunc func(x, z float64) float64

func (f HeightFunc) Height(x, z float64) float64 {
	return f(x, z)
}

// Octave is one amplitude/frequency layer of a HeightField.
type Octave struct {
	Amplitude float64
	Frequency float64
}

// HeightField sums four seeded gradient-noise octaves. It holds configuration
// only, so Height is a pure function of its inputs and safe for concurrent
// use.
type HeightField struct {
	width   float64
	depth   float64
	offsetX float64
	offsetZ float64
	seed    int64
	octaves [config.OctaveCount]Octave
}

// NewHeightField builds the height field described by cfg. Width and Depth
// normalise sample coordinates so the same octave frequencies describe the
// same landscape regardless of grid resolution.
func NewHeightField(cfg config.TerrainConfig) (*HeightField, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("height field: %w", err)
	}
	field := &HeightField{
		width:   float64(cfg.Width),
		depth:   float64(cfg.Depth),
		offsetX: cfg.OffsetX,
		offsetZ: cfg.OffsetZ,
		seed:    cfg.Seed,
	}
	for i, octave := range cfg.Octaves {
		field.octaves[i] = Octave{Amplitude: octave.Amplitude, Frequency: octave.Frequency}
	}
	return field, nil
}

// Height evaluates the field at (x, z). Integer and fractional coordinates
// are both valid; fractional ones are used when resampling routes.
func (f *HeightField) Height(x, z float64) float64 {
	nx := (x + f.offsetX) / f.width
	nz := (z + f.offsetZ) / f.depth

	sum := 0.0
	for i, octave := range f.octaves {
		// Octaves draw from distinct lattices so they do not align.
		sum += gradientNoise(nx*octave.Frequency, nz*octave.Frequency, f.seed+int64(i*131)) * octave.Amplitude
	}
	return sum
}

// Octaves returns the configured octave layers.
func (f *HeightField) Octaves() [config.OctaveCount]Octave {
	return f.octaves
}

package pathfinding

import (
	"fmt"
	"math"

	"terrainroute/internal/terrain"
)

// planarEpsilon is the planar distance below which two nodes are treated as
// vertically stacked.
const planarEpsilon = 1e-9

// CostModel weighs an edge by its 3D length, its signed slope and the depth
// of the destination below the water level.
type CostModel struct {
	DistInfluence  float64 `json:"distInfluence" yaml:"dist_influence"`
	SlopeInfluence float64 `json:"slopeInfluence" yaml:"slope_influence"`
	WaterInfluence float64 `json:"waterInfluence" yaml:"water_influence"`
	WaterLevel     float64 `json:"waterLevel" yaml:"water_level"`
}

// Validate rejects negative or non-finite weights and a non-finite water
// level.
func (m CostModel) Validate() error {
	weights := []struct {
		name  string
		value float64
	}{
		{"distInfluence", m.DistInfluence},
		{"slopeInfluence", m.SlopeInfluence},
		{"waterInfluence", m.WaterInfluence},
	}
	for _, w := range weights {
		if math.IsNaN(w.value) || math.IsInf(w.value, 0) || w.value < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidConfiguration, w.name, w.value)
		}
	}
	if math.IsNaN(m.WaterLevel) || math.IsInf(m.WaterLevel, 0) {
		return fmt.Errorf("%w: waterLevel must be finite, got %v", ErrInvalidConfiguration, m.WaterLevel)
	}
	return nil
}

// Cost is the weight of the edge curr -> next. Slope is signed, so downhill
// edges can cost less than their length; a weight set with
// SlopeInfluence > DistInfluence may produce negative edges.
func (m CostModel) Cost(curr, next terrain.Node) float64 {
	cost := m.DistInfluence * Distance3D(curr, next)
	if m.SlopeInfluence != 0 {
		cost += m.SlopeInfluence * SlopeCost(curr, next)
	}
	if m.WaterInfluence != 0 {
		cost += m.WaterInfluence * m.WaterCost(next)
	}
	return cost
}

// WaterCost grows linearly with the depth of n below the water level.
func (m CostModel) WaterCost(n terrain.Node) float64 {
	return math.Max(m.WaterLevel-n.Height, 0)
}

// Distance3D is the Euclidean distance in (row, col, height) space.
func Distance3D(a, b terrain.Node) float64 {
	dr := float64(a.Row - b.Row)
	dc := float64(a.Col - b.Col)
	dh := a.Height - b.Height
	return math.Sqrt(dr*dr + dc*dc + dh*dh)
}

// PlanarDistance ignores height.
func PlanarDistance(a, b terrain.Node) float64 {
	dr := float64(a.Row - b.Row)
	dc := float64(a.Col - b.Col)
	return math.Sqrt(dr*dr + dc*dc)
}

// SlopeCost is the height gained per unit of planar distance from curr to
// next. A vertical step with no planar extent is a wall and costs
// math.MaxFloat64; a zero-length edge costs nothing.
func SlopeCost(curr, next terrain.Node) float64 {
	rise := next.Height - curr.Height
	planar := PlanarDistance(curr, next)
	if planar < planarEpsilon {
		if rise == 0 {
			return 0
		}
		return math.MaxFloat64
	}
	return rise / planar
}

package route

import (
	"errors"
	"fmt"
	"math"

	"terrainroute/internal/pathfinding"
	"terrainroute/internal/terrain"
)

var ErrInvalidSpacing = errors.New("route: spacing must be positive")

// MaxResamplePoints bounds the number of points Resample emits for one
// route.
const MaxResamplePoints = 1 << 16

// Point is a position along a route in continuous grid coordinates. X runs
// along rows and Z along columns, matching HeightSampler.Height.
type Point struct {
	X      float64 `json:"x" yaml:"x"`
	Z      float64 `json:"z" yaml:"z"`
	Height float64 `json:"height" yaml:"height"`
}

// ClampToWater returns a copy of waypoints with every height below level
// raised to level. Routes are searched against true terrain heights; the
// clamp only changes how the route is laid over the surface.
func ClampToWater(waypoints []pathfinding.Waypoint, level float64) []pathfinding.Waypoint {
	if waypoints == nil {
		return nil
	}
	out := make([]pathfinding.Waypoint, len(waypoints))
	for i, w := range waypoints {
		w.Height = math.Max(w.Height, level)
		out[i] = w
	}
	return out
}

// ClampPoints is ClampToWater for resampled points.
func ClampPoints(points []Point, level float64) []Point {
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		p.Height = math.Max(p.Height, level)
		out[i] = p
	}
	return out
}

// Length returns the planar and the 3D length of the polyline through
// waypoints.
func Length(waypoints []pathfinding.Waypoint) (planar, surface float64) {
	for i := 1; i < len(waypoints); i++ {
		a, b := waypoints[i-1], waypoints[i]
		dr := float64(b.Row - a.Row)
		dc := float64(b.Col - a.Col)
		dh := b.Height - a.Height
		planar += math.Hypot(dr, dc)
		surface += math.Sqrt(dr*dr + dc*dc + dh*dh)
	}
	return planar, surface
}

// Resample walks the planar polyline through waypoints and emits a point
// every spacing units, starting at the first waypoint and always ending on
// the last one. A spacing that would produce more than MaxResamplePoints
// points is rejected with ErrInvalidSpacing. Heights are re-sampled from sampler and multiplied by scale,
// so points between grid nodes follow the continuous surface.
func Resample(waypoints []pathfinding.Waypoint, spacing float64, sampler terrain.HeightSampler, scale float64) ([]Point, error) {
	if !(spacing > 0) || math.IsInf(spacing, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpacing, spacing)
	}
	if sampler == nil {
		return nil, errors.New("route: nil height sampler")
	}
	if len(waypoints) == 0 {
		return nil, nil
	}
	planar, _ := Length(waypoints)
	if planar/spacing > MaxResamplePoints {
		return nil, fmt.Errorf("%w: %v yields more than %d points over length %.2f", ErrInvalidSpacing, spacing, MaxResamplePoints, planar)
	}

	at := func(x, z float64) Point {
		return Point{X: x, Z: z, Height: sampler.Height(x, z) * scale}
	}

	first := waypoints[0]
	points := []Point{at(float64(first.Row), float64(first.Col))}
	// carried is the distance walked since the last emitted point.
	carried := 0.0
	for i := 1; i < len(waypoints); i++ {
		ax, az := float64(waypoints[i-1].Row), float64(waypoints[i-1].Col)
		bx, bz := float64(waypoints[i].Row), float64(waypoints[i].Col)
		segment := math.Hypot(bx-ax, bz-az)
		if segment == 0 {
			continue
		}
		walked := spacing - carried
		for walked <= segment {
			t := walked / segment
			points = append(points, at(ax+(bx-ax)*t, az+(bz-az)*t))
			walked += spacing
		}
		carried = segment - (walked - spacing)
	}

	last := waypoints[len(waypoints)-1]
	end := at(float64(last.Row), float64(last.Col))
	tail := points[len(points)-1]
	if math.Hypot(end.X-tail.X, end.Z-tail.Z) > 1e-9 {
		points = append(points, end)
	}
	return points, nil
}

package terrain

import "math"

// gradients are the eight lattice directions gradient noise picks from.
var gradients = [8][2]float64{
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
}

// gradientNoise returns seeded 2D Perlin noise remapped into [0, 1].
func gradientNoise(x, y float64, seed int64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix := int(x0)
	iy := int(y0)

	sx := fade(fx)
	sy := fade(fy)

	n00 := gradientDot(ix, iy, fx, fy, seed)
	n10 := gradientDot(ix+1, iy, fx-1, fy, seed)
	ix0 := lerp(n00, n10, sx)

	n01 := gradientDot(ix, iy+1, fx, fy-1, seed)
	n11 := gradientDot(ix+1, iy+1, fx-1, fy-1, seed)
	ix1 := lerp(n01, n11, sx)

	return clamp(lerp(ix0, ix1, sy)*0.5+0.5, 0, 1)
}

func gradientDot(ix, iy int, dx, dy float64, seed int64) float64 {
	g := gradients[hash3(ix, iy, int(seed))&7]
	return g[0]*dx + g[1]*dy
}

func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Package testutils provides fixtures shared by the tests of the other packages.
package testutils

import (
	"math"

	"github.com/golang/geo/r3"

	pc "go.viam.com/denoise/pointcloud"
)

// SplitMix64 is a small deterministic generator. It is used instead of math/rand so that fixture
// clouds are identical on every Go release and can be reproduced outside of Go.
type SplitMix64 struct {
	state uint64
}

// NewSplitMix64 returns a generator seeded with seed.
func NewSplitMix64(seed uint64) *SplitMix64 {
	return &SplitMix64{state: seed}
}

// Uint64 returns the next value of the sequence.
func (s *SplitMix64) Uint64() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1) built from the top 53 bits of the next value.
func (s *SplitMix64) Float64() float64 {
	return float64(s.Uint64()>>11) * (1.0 / (1 << 53))
}

// UniformPoints returns n points drawn uniformly from the unit cube, x then y then z for each.
func UniformPoints(seed uint64, n int) []r3.Vector {
	rng := NewSplitMix64(seed)
	points := make([]r3.Vector, n)
	for i := range points {
		points[i].X = rng.Float64()
		points[i].Y = rng.Float64()
		points[i].Z = rng.Float64()
	}
	return points
}

// UniformCloud returns a cloud of n points drawn uniformly from the unit cube.
func UniformCloud(seed uint64, n int) pc.PointCloud {
	return pc.NewFromPoints(UniformPoints(seed, n))
}

// GridPlane returns an n by n grid of points spaced step apart on the plane z = 0, starting at the
// origin.
func GridPlane(n int, step float64) []r3.Vector {
	points := make([]r3.Vector, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			points = append(points, r3.Vector{X: float64(i) * step, Y: float64(j) * step})
		}
	}
	return points
}

// BruteForceRadius returns, in ascending order, the indices of the points within r of q.
func BruteForceRadius(points []r3.Vector, q r3.Vector, r float64) []int {
	var out []int
	r2 := r * r
	for i, p := range points {
		if d := p.Sub(q).Norm2(); d <= r2 && !math.IsNaN(d) {
			out = append(out, i)
		}
	}
	return out
}

package denoise

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPlaneFit(t *testing.T) {
	// Points on the plane x + y + z = 1.
	var points []r3.Vector
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			x, y := float64(i)*0.1, float64(j)*0.1
			points = append(points, r3.Vector{X: x, Y: y, Z: 1 - x - y})
		}
	}
	fitter := newPlaneFitter()
	pl, ok := fitter.fit(points)
	test.That(t, ok, test.ShouldBeTrue)

	expected := r3.Vector{X: 1, Y: 1, Z: 1}.Normalize()
	test.That(t, math.Abs(pl.normal.Dot(expected)), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, pl.normal.Norm(), test.ShouldAlmostEqual, 1, 1e-12)
	for _, p := range points {
		test.That(t, pl.distance(p), test.ShouldAlmostEqual, 0, 1e-9)
	}
	test.That(t, fitter.spread(pl, points), test.ShouldAlmostEqual, 0, 1e-9)

	off := r3.Vector{X: 0.1, Y: 0.1, Z: 1}
	test.That(t, math.Abs(pl.distance(off)), test.ShouldAlmostEqual, 0.2/math.Sqrt(3), 1e-9)
}

func TestPlaneSpread(t *testing.T) {
	points := []r3.Vector{
		{X: 0, Y: 0, Z: 0.1},
		{X: 1, Y: 0, Z: -0.1},
		{X: 0, Y: 1, Z: -0.1},
		{X: 1, Y: 1, Z: 0.1},
	}
	fitter := newPlaneFitter()
	pl, ok := fitter.fit(points)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(pl.normal.Z), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, fitter.spread(pl, points), test.ShouldAlmostEqual, 0.1, 1e-9)
}

func TestPlaneFitDegenerate(t *testing.T) {
	fitter := newPlaneFitter()

	_, ok := fitter.fit([]r3.Vector{{X: 1}, {X: 2}})
	test.That(t, ok, test.ShouldBeFalse)

	_, ok = fitter.fit([]r3.Vector{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}})
	test.That(t, ok, test.ShouldBeFalse)

	_, ok = fitter.fit([]r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 2, Z: 3}, {X: 2, Y: 4, Z: 6}, {X: -1, Y: -2, Z: -3}})
	test.That(t, ok, test.ShouldBeFalse)
}

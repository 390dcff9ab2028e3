package denoise

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// degenerateRatio bounds the middle eigenvalue of a neighbourhood's covariance, relative to the
// largest one, below which the points lie on a line and do not define a plane.
const degenerateRatio = 1e-12

// plane is a plane through center with unit normal.
type plane struct {
	center r3.Vector
	normal r3.Vector
}

// distance returns the signed distance from p to the plane.
func (pl plane) distance(p r3.Vector) float64 {
	return p.Sub(pl.center).Dot(pl.normal)
}

// planeFitter fits least squares planes. It keeps its matrices between fits and must not be
// shared between goroutines.
type planeFitter struct {
	cov     *mat.SymDense
	eig     mat.EigenSym
	vectors *mat.Dense
	values  []float64
	dists   []float64
}

func newPlaneFitter() *planeFitter {
	return &planeFitter{
		cov:     mat.NewSymDense(3, nil),
		vectors: mat.NewDense(3, 3, nil),
		values:  make([]float64, 3),
	}
}

// fit returns the least squares plane through points. The plane passes through their centroid
// and its normal is the eigenvector of the smallest eigenvalue of their covariance. It returns
// false when the points are coincident or collinear.
func (f *planeFitter) fit(points []r3.Vector) (plane, bool) {
	if len(points) < 3 {
		return plane{}, false
	}
	var center r3.Vector
	for _, p := range points {
		center = center.Add(p)
	}
	center = center.Mul(1 / float64(len(points)))

	var xx, xy, xz, yy, yz, zz float64
	for _, p := range points {
		d := p.Sub(center)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
		zz += d.Z * d.Z
	}
	n := float64(len(points))
	f.cov.SetSym(0, 0, xx/n)
	f.cov.SetSym(0, 1, xy/n)
	f.cov.SetSym(0, 2, xz/n)
	f.cov.SetSym(1, 1, yy/n)
	f.cov.SetSym(1, 2, yz/n)
	f.cov.SetSym(2, 2, zz/n)

	if ok := f.eig.Factorize(f.cov, true); !ok {
		return plane{}, false
	}
	// Eigenvalues come back in ascending order.
	values := f.eig.Values(f.values)
	if !(values[2] > 0) || values[1] <= degenerateRatio*values[2] {
		return plane{}, false
	}
	f.eig.VectorsTo(f.vectors)
	normal := r3.Vector{X: f.vectors.At(0, 0), Y: f.vectors.At(1, 0), Z: f.vectors.At(2, 0)}.Normalize()
	return plane{center: center, normal: normal}, true
}

// spread returns the standard deviation of the signed distances from points to pl.
func (f *planeFitter) spread(pl plane, points []r3.Vector) float64 {
	f.dists = f.dists[:0]
	for _, p := range points {
		f.dists = append(f.dists, pl.distance(p))
	}
	_, std := stat.PopMeanStdDev(f.dists, nil)
	return std
}

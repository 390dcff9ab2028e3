// Package pointcloud defines a point cloud and provides reading and writing of binary PCD files.
//
// A cloud is an ordered list of positions. It is built once, while a file is being read or from
// an existing slice, and is read-only after that.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns an empty bounding box that any point will grow.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge grows the bounds to contain v.
func (meta *MetaData) Merge(v r3.Vector) {
	meta.MinX = math.Min(meta.MinX, v.X)
	meta.MinY = math.Min(meta.MinY, v.Y)
	meta.MinZ = math.Min(meta.MinZ, v.Z)
	meta.MaxX = math.Max(meta.MaxX, v.X)
	meta.MaxY = math.Max(meta.MaxY, v.Y)
	meta.MaxZ = math.Max(meta.MaxZ, v.Z)
}

// Min returns the lower corner of the bounds.
func (meta MetaData) Min() r3.Vector {
	return r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}
}

// Max returns the upper corner of the bounds.
func (meta MetaData) Max() r3.Vector {
	return r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ}
}

// Center returns the middle of the bounds.
func (meta MetaData) Center() r3.Vector {
	return meta.Min().Add(meta.Max()).Mul(0.5)
}

// Extent returns the largest side of the bounds, or 0 for an empty cloud.
func (meta MetaData) Extent() float64 {
	if meta.MaxX < meta.MinX {
		return 0
	}
	return math.Max(meta.MaxX-meta.MinX, math.Max(meta.MaxY-meta.MinY, meta.MaxZ-meta.MinZ))
}

// PointCloud is an ordered, read-only collection of points.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns the bounds of the cloud.
	MetaData() MetaData

	// At returns the i-th point. It panics if i is out of range.
	At(i int) r3.Vector

	// Iterate iterates over all points in the cloud in order and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	// numBatches lets you divide up the work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool)
}

// basicPointCloud is the slice backed implementation of the PointCloud interface.
type basicPointCloud struct {
	points []r3.Vector
	meta   MetaData
}

// newWithPrealloc returns an empty cloud whose storage is reserved for size points.
func newWithPrealloc(size int) *basicPointCloud {
	return &basicPointCloud{
		points: make([]r3.Vector, 0, size),
		meta:   NewMetaData(),
	}
}

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// NewFromPoints returns a cloud holding a copy of points.
func NewFromPoints(points []r3.Vector) PointCloud {
	cloud := newWithPrealloc(len(points))
	for _, p := range points {
		cloud.add(p)
	}
	return cloud
}

// Subset returns a cloud holding the points of cloud at indices, in the order given.
func Subset(cloud PointCloud, indices []int) PointCloud {
	return NewFromPoints(lo.Map(indices, func(i, _ int) r3.Vector {
		return cloud.At(i)
	}))
}

// add appends a point. It is only used while a cloud is being constructed.
func (cloud *basicPointCloud) add(p r3.Vector) {
	cloud.points = append(cloud.points, p)
	cloud.meta.Merge(p)
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(i int) r3.Vector {
	return cloud.points[i]
}

func (cloud *basicPointCloud) Iterate(numBatches, myBatch int, fn func(i int, p r3.Vector) bool) {
	from, to := 0, len(cloud.points)
	if numBatches > 0 {
		batchSize := (len(cloud.points) + numBatches - 1) / numBatches
		from = batchSize * myBatch
		to = from + batchSize
		if to > len(cloud.points) {
			to = len(cloud.points)
		}
	}
	for i := from; i < to; i++ {
		if !fn(i, cloud.points[i]) {
			return
		}
	}
}

// CloudCentroid returns the centroid of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.Size() == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	pc.Iterate(0, 0, func(_ int, p r3.Vector) bool {
		sum = sum.Add(p)
		return true
	})
	return sum.Mul(1 / float64(pc.Size()))
}

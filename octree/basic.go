package octree

import (
	"math"

	"github.com/golang/geo/r3"

	pc "go.viam.com/denoise/pointcloud"
)

// Build partitions cloud into an octree. The root cell is a cube whose side is the largest extent
// of the cloud's bounds; nodes are split into octants until they hold at most the leaf capacity
// or reach the maximum depth.
func Build(cloud pc.PointCloud, opts ...Option) (*Octree, error) {
	o := options{
		leafCapacity: DefaultLeafCapacity,
		maxDepth:     DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.leafCapacity < 1 {
		return nil, NewBuildError("invalid leaf capacity (%d) for octree", o.leafCapacity)
	}
	if o.maxDepth < 0 || o.maxDepth > math.MaxUint8 {
		return nil, NewBuildError("invalid max depth (%d) for octree", o.maxDepth)
	}
	if cloud == nil || cloud.Size() == 0 {
		return nil, NewBuildError("point cloud is empty")
	}
	if cloud.Size() > math.MaxInt32 {
		return nil, NewBuildError("point cloud has too many points (%d)", cloud.Size())
	}

	meta := cloud.MetaData()
	extent := meta.Extent()
	if math.IsNaN(extent) || math.IsInf(extent, 0) {
		return nil, NewBuildError("point cloud bounds are not finite")
	}
	if extent <= 0 {
		return nil, NewBuildError("point cloud has zero extent, all %d points coincide", cloud.Size())
	}

	// The upper corner is clamped to the cloud's max so that rounding never leaves a point outside.
	lo := meta.Min()
	hi := r3.Vector{
		X: math.Max(lo.X+extent, meta.MaxX),
		Y: math.Max(lo.Y+extent, meta.MaxY),
		Z: math.Max(lo.Z+extent, meta.MaxZ),
	}

	size := cloud.Size()
	octree := &Octree{
		cloud:   cloud,
		indices: make([]int, size),
		nodes:   make([]node, 0, 2*size/o.leafCapacity+1),
	}
	for i := range octree.indices {
		octree.indices[i] = i
	}
	octree.nodes = append(octree.nodes, newLeafNode(0, lo, hi, 0, int32(size)))

	// Nodes are appended behind the one being split, so this visits the tree breadth first.
	scratch := make([]int, size)
	for id := 0; id < len(octree.nodes); id++ {
		octree.splitIntoOctants(int32(id), scratch, o)
	}
	return octree, nil
}

func newLeafNode(depth uint8, lo, hi r3.Vector, start, end int32) node {
	n := node{
		nodeType: LeafNode,
		depth:    depth,
		lo:       lo,
		hi:       hi,
		start:    start,
		end:      end,
	}
	for i := range n.children {
		n.children[i] = noChild
	}
	return n
}

// splitIntoOctants turns the leaf id into an internal node when it holds too many points, sorting
// its points by octant and appending one child per non-empty octant.
func (octree *Octree) splitIntoOctants(id int32, scratch []int, o options) {
	parent := octree.nodes[id]
	if int(parent.depth) > octree.depth {
		octree.depth = int(parent.depth)
	}
	if int(parent.end-parent.start) <= o.leafCapacity || int(parent.depth) >= o.maxDepth {
		return
	}

	center := parent.lo.Add(parent.hi).Mul(0.5)
	points := octree.indices[parent.start:parent.end]
	var counts [8]int32
	for _, idx := range points {
		counts[octant(octree.cloud.At(idx), center)]++
	}
	var offsets, next [8]int32
	for c := 1; c < 8; c++ {
		offsets[c] = offsets[c-1] + counts[c-1]
	}
	next = offsets
	buf := scratch[parent.start:parent.end]
	for _, idx := range points {
		c := octant(octree.cloud.At(idx), center)
		buf[next[c]] = idx
		next[c]++
	}
	copy(points, buf)

	octree.nodes[id].nodeType = InternalNode
	for c := 0; c < 8; c++ {
		if counts[c] == 0 {
			continue
		}
		lo, hi := octantBounds(parent.lo, parent.hi, center, c)
		start := parent.start + offsets[c]
		octree.nodes[id].children[c] = int32(len(octree.nodes))
		octree.nodes = append(octree.nodes, newLeafNode(parent.depth+1, lo, hi, start, start+counts[c]))
	}
}

// octant returns the child a point belongs to. Bit 2 selects the upper x half, bit 1 the upper y
// half and bit 0 the upper z half. Points on a dividing plane go to the upper half.
func octant(p, center r3.Vector) int {
	c := 0
	if p.X >= center.X {
		c |= 4
	}
	if p.Y >= center.Y {
		c |= 2
	}
	if p.Z >= center.Z {
		c |= 1
	}
	return c
}

// octantBounds returns the corners of octant c of the cell [lo, hi].
func octantBounds(lo, hi, center r3.Vector, c int) (r3.Vector, r3.Vector) {
	if c&4 != 0 {
		lo.X = center.X
	} else {
		hi.X = center.X
	}
	if c&2 != 0 {
		lo.Y = center.Y
	} else {
		hi.Y = center.Y
	}
	if c&1 != 0 {
		lo.Z = center.Z
	} else {
		hi.Z = center.Z
	}
	return lo, hi
}

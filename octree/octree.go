// Package octree implements an octree over a point cloud for fixed radius neighbour queries.
//
// The tree is stored as an arena: every node lives in one slice and refers to its children by
// index, and every node owns a contiguous range of a single permuted slice of point indices. The
// tree is read-only once built, so any number of Searchers may query it concurrently.
package octree

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	pc "go.viam.com/denoise/pointcloud"
)

// Each node in the octree is either an internal node which links to up to eight child octants, or
// a leaf node which holds the points falling in its cell. Octants without points are not stored.
const (
	InternalNode = NodeType(iota)
	LeafNode
)

// NodeType represents the possible types of nodes in an octree.
type NodeType uint8

// noChild marks an octant that holds no points.
const noChild = int32(-1)

const (
	// DefaultLeafCapacity is the largest number of points a leaf holds before it is split.
	DefaultLeafCapacity = 16
	// DefaultMaxDepth is the deepest a node may be. Nodes at this depth are leaves whatever their size.
	DefaultMaxDepth = 21
)

// ErrBuild is returned when an octree cannot be built over a cloud.
var ErrBuild = errors.New("cannot build octree")

// NewBuildError is used when the cloud cannot be partitioned.
func NewBuildError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBuild, format, args...)
}

// node is a cell of the octree. Its points are indices[start:end] of the owning Octree.
type node struct {
	nodeType NodeType
	depth    uint8
	lo, hi   r3.Vector
	start    int32
	end      int32
	children [8]int32
}

// Octree is an immutable spatial index over a point cloud.
type Octree struct {
	cloud   pc.PointCloud
	nodes   []node
	indices []int
	depth   int
}

// Size returns the number of points indexed by the octree.
func (octree *Octree) Size() int {
	return len(octree.indices)
}

// NumNodes returns the number of stored nodes, root included.
func (octree *Octree) NumNodes() int {
	return len(octree.nodes)
}

// Depth returns the depth of the deepest node. A tree made of only the root has depth 0.
func (octree *Octree) Depth() int {
	return octree.depth
}

// Cloud returns the cloud the octree was built over.
func (octree *Octree) Cloud() pc.PointCloud {
	return octree.cloud
}

// Bounds returns the corners of the root cell.
func (octree *Octree) Bounds() (r3.Vector, r3.Vector) {
	return octree.nodes[0].lo, octree.nodes[0].hi
}

type options struct {
	leafCapacity int
	maxDepth     int
}

// Option configures how an octree is built.
type Option func(*options)

// WithLeafCapacity sets how many points a leaf may hold before it is split.
func WithLeafCapacity(n int) Option {
	return func(o *options) {
		o.leafCapacity = n
	}
}

// WithMaxDepth sets the deepest level the tree may reach.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

package octree

import (
	"math"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	pc "go.viam.com/denoise/pointcloud"
	"go.viam.com/denoise/testutils"
)

func TestBuildErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		cloud    pc.PointCloud
		opts     []Option
		contains string
	}{
		{"nil cloud", nil, nil, "empty"},
		{"empty cloud", pc.NewFromPoints(nil), nil, "empty"},
		{"single point", pc.NewFromPoints([]r3.Vector{{X: 1, Y: 2, Z: 3}}), nil, "zero extent"},
		{"coincident points", pc.NewFromPoints([]r3.Vector{{X: 1}, {X: 1}, {X: 1}}), nil, "all 3 points coincide"},
		{"nan point", pc.NewFromPoints([]r3.Vector{{X: 1}, {X: math.NaN()}}), nil, "not finite"},
		{"infinite point", pc.NewFromPoints([]r3.Vector{{X: 1}, {Y: math.Inf(1)}}), nil, "not finite"},
		{"leaf capacity", testutils.UniformCloud(1, 10), []Option{WithLeafCapacity(0)}, "leaf capacity"},
		{"max depth", testutils.UniformCloud(1, 10), []Option{WithMaxDepth(-1)}, "max depth"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			octree, err := Build(tc.cloud, tc.opts...)
			test.That(t, octree, test.ShouldBeNil)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, ErrBuild), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
		})
	}
}

func TestNodeCreation(t *testing.T) {
	cloud := pc.NewFromPoints([]r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 1, Z: 0.5}})
	octree, err := Build(cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, octree.Size(), test.ShouldEqual, 2)
	test.That(t, octree.NumNodes(), test.ShouldEqual, 1)
	test.That(t, octree.Depth(), test.ShouldEqual, 0)
	test.That(t, octree.Cloud(), test.ShouldEqual, cloud)

	lo, hi := octree.Bounds()
	test.That(t, lo, test.ShouldResemble, r3.Vector{})
	test.That(t, hi, test.ShouldResemble, r3.Vector{X: 2, Y: 2, Z: 2})
}

func TestSplitIntoOctants(t *testing.T) {
	// One point in each corner of the cube [0,2]^3 and a leaf capacity of one gives exactly one level
	// of children, ordered by octant.
	var points []r3.Vector
	for c := 0; c < 8; c++ {
		points = append(points, r3.Vector{
			X: float64(c >> 2 & 1 * 2),
			Y: float64(c >> 1 & 1 * 2),
			Z: float64(c & 1 * 2),
		})
	}
	// Reverse so the split has to reorder the indices.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	octree, err := Build(pc.NewFromPoints(points), WithLeafCapacity(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, octree.NumNodes(), test.ShouldEqual, 9)
	test.That(t, octree.Depth(), test.ShouldEqual, 1)

	root := octree.nodes[0]
	test.That(t, root.nodeType, test.ShouldEqual, InternalNode)
	for c := 0; c < 8; c++ {
		child := octree.nodes[root.children[c]]
		test.That(t, child.nodeType, test.ShouldEqual, LeafNode)
		test.That(t, child.end-child.start, test.ShouldEqual, int32(1))
		test.That(t, octree.indices[child.start], test.ShouldEqual, 7-c)
	}
	validateOctree(t, octree, 0)
}

func TestMaxDepth(t *testing.T) {
	// Many copies of one point cannot be separated; splitting stops at the max depth.
	points := []r3.Vector{{X: 1, Y: 1, Z: 1}}
	for i := 0; i < 40; i++ {
		points = append(points, r3.Vector{})
	}
	octree, err := Build(pc.NewFromPoints(points), WithMaxDepth(5))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, octree.Depth(), test.ShouldEqual, 5)
	validateOctree(t, octree, 0)
}

func TestBuildUniform(t *testing.T) {
	cloud := testutils.UniformCloud(7, 5000)
	octree, err := Build(cloud)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, octree.Size(), test.ShouldEqual, cloud.Size())
	test.That(t, validateOctree(t, octree, 0), test.ShouldEqual, int32(cloud.Size()))

	seen := make([]bool, cloud.Size())
	for _, idx := range octree.indices {
		test.That(t, seen[idx], test.ShouldBeFalse)
		seen[idx] = true
	}
}

func TestRadiusMatchesBruteForce(t *testing.T) {
	points := testutils.UniformPoints(42, 3000)
	octree, err := Build(pc.NewFromPoints(points), WithLeafCapacity(8))
	test.That(t, err, test.ShouldBeNil)
	searcher := octree.NewSearcher()

	queries := append([]r3.Vector{}, points[:200]...)
	queries = append(queries,
		r3.Vector{X: -0.5, Y: 0.5, Z: 0.5},
		r3.Vector{X: 0.5, Y: 0.5, Z: 0.5},
		r3.Vector{X: 3, Y: 3, Z: 3},
	)
	for _, r := range []float64{0, 0.01, 0.05, 0.1, 0.3, 2} {
		for _, q := range queries {
			got := append([]int(nil), searcher.Radius(q, r)...)
			sort.Ints(got)
			expected := testutils.BruteForceRadius(points, q, r)
			if len(expected) == 0 {
				test.That(t, got, test.ShouldBeEmpty)
				continue
			}
			test.That(t, got, test.ShouldResemble, expected)
		}
	}
}

func TestRadiusIncludesQueryPoint(t *testing.T) {
	points := testutils.UniformPoints(3, 100)
	octree, err := Build(pc.NewFromPoints(points))
	test.That(t, err, test.ShouldBeNil)
	searcher := octree.NewSearcher()
	for i, p := range points {
		test.That(t, searcher.Radius(p, 0), test.ShouldContain, i)
	}
	test.That(t, searcher.Radius(points[0], -1), test.ShouldBeEmpty)
	test.That(t, searcher.Radius(points[0], math.NaN()), test.ShouldBeEmpty)
	test.That(t, len(searcher.Radius(points[0], 10)), test.ShouldEqual, len(points))
}

func TestSearchersAreIndependent(t *testing.T) {
	points := testutils.UniformPoints(11, 500)
	octree, err := Build(pc.NewFromPoints(points))
	test.That(t, err, test.ShouldBeNil)
	a, b := octree.NewSearcher(), octree.NewSearcher()

	first := append([]int(nil), a.Radius(points[0], 0.2)...)
	b.Radius(points[1], 0.5)
	test.That(t, a.Radius(points[0], 0.2), test.ShouldResemble, first)
}

// validateOctree recursively checks the structure of the subtree rooted at id and returns the
// number of points it holds.
func validateOctree(t *testing.T, octree *Octree, id int32) int32 {
	t.Helper()
	n := octree.nodes[id]
	test.That(t, n.start, test.ShouldBeLessThanOrEqualTo, n.end)

	for _, idx := range octree.indices[n.start:n.end] {
		p := octree.cloud.At(idx)
		test.That(t, p.X, test.ShouldBeBetweenOrEqual, n.lo.X, n.hi.X)
		test.That(t, p.Y, test.ShouldBeBetweenOrEqual, n.lo.Y, n.hi.Y)
		test.That(t, p.Z, test.ShouldBeBetweenOrEqual, n.lo.Z, n.hi.Z)
	}

	switch n.nodeType {
	case InternalNode:
		var size int32
		next := n.start
		numChildren := 0
		center := n.lo.Add(n.hi).Mul(0.5)
		for c, child := range n.children {
			if child == noChild {
				continue
			}
			numChildren++
			childNode := octree.nodes[child]
			test.That(t, childNode.depth, test.ShouldEqual, n.depth+1)
			test.That(t, childNode.start, test.ShouldEqual, next)
			lo, hi := octantBounds(n.lo, n.hi, center, c)
			test.That(t, childNode.lo, test.ShouldResemble, lo)
			test.That(t, childNode.hi, test.ShouldResemble, hi)
			size += validateOctree(t, octree, child)
			next = childNode.end
		}
		test.That(t, numChildren, test.ShouldBeGreaterThan, 0)
		test.That(t, next, test.ShouldEqual, n.end)
		test.That(t, size, test.ShouldEqual, n.end-n.start)
		return size
	default:
		for _, child := range n.children {
			test.That(t, child, test.ShouldEqual, noChild)
		}
		return n.end - n.start
	}
}

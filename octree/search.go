package octree

import (
	"math"

	"github.com/golang/geo/r3"
)

// Searcher answers radius queries against an octree. A Searcher owns its traversal stack and
// result buffer, so once they have grown a query allocates nothing. It must not be shared
// between goroutines; create one per goroutine instead.
type Searcher struct {
	octree  *Octree
	stack   []int32
	results []int
}

// NewSearcher returns a Searcher over the octree.
func (octree *Octree) NewSearcher() *Searcher {
	return &Searcher{
		octree: octree,
		stack:  make([]int32, 0, 8*(octree.depth+1)),
	}
}

// Radius returns the indices of every point whose distance to q is at most r, q itself included
// when it is a point of the cloud. The returned slice is reused by the next query.
func (s *Searcher) Radius(q r3.Vector, r float64) []int {
	s.results = s.results[:0]
	if !(r >= 0) || math.IsInf(r, 0) {
		return s.results
	}
	r2 := r * r
	octree := s.octree

	s.stack = append(s.stack[:0], 0)
	for len(s.stack) > 0 {
		id := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		n := &octree.nodes[id]

		if minDistSquared(q, n.lo, n.hi) > r2 {
			continue
		}
		points := octree.indices[n.start:n.end]
		if maxDistSquared(q, n.lo, n.hi) <= r2 {
			s.results = append(s.results, points...)
			continue
		}
		if n.nodeType == LeafNode {
			for _, idx := range points {
				if octree.cloud.At(idx).Sub(q).Norm2() <= r2 {
					s.results = append(s.results, idx)
				}
			}
			continue
		}
		for c := 7; c >= 0; c-- {
			if child := n.children[c]; child != noChild {
				s.stack = append(s.stack, child)
			}
		}
	}
	return s.results
}

// minDistSquared is the squared distance from q to the closest point of the box [lo, hi].
func minDistSquared(q, lo, hi r3.Vector) float64 {
	d := r3.Vector{
		X: math.Max(0, math.Max(lo.X-q.X, q.X-hi.X)),
		Y: math.Max(0, math.Max(lo.Y-q.Y, q.Y-hi.Y)),
		Z: math.Max(0, math.Max(lo.Z-q.Z, q.Z-hi.Z)),
	}
	return d.Norm2()
}

// maxDistSquared is the squared distance from q to the farthest corner of the box [lo, hi].
func maxDistSquared(q, lo, hi r3.Vector) float64 {
	d := r3.Vector{
		X: math.Max(math.Abs(q.X-lo.X), math.Abs(q.X-hi.X)),
		Y: math.Max(math.Abs(q.Y-lo.Y), math.Abs(q.Y-hi.Y)),
		Z: math.Max(math.Abs(q.Z-lo.Z), math.Abs(q.Z-hi.Z)),
	}
	return d.Norm2()
}

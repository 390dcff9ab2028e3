package denoise

import (
	"context"
	"sync/atomic"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/denoise/octree"
	pc "go.viam.com/denoise/pointcloud"
	"go.viam.com/denoise/utils"
)

// MinNeighbors is the smallest neighbourhood, the point itself included, that is tested against
// a plane. Smaller neighbourhoods make the point isolated.
const MinNeighbors = 4

// contextCheckInterval is how many points a group classifies between checks of the context.
const contextCheckInterval = 256

// ErrFilter is returned when the filter cannot produce a result.
var ErrFilter = errors.New("noise filter failed")

// NewFilterError is used when the filter cannot run or cannot produce a result.
func NewFilterError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrFilter, format, args...)
}

// Stats summarises a filter run.
type Stats struct {
	Input int
	Kept  int
	// Rejected counts every removed point, whatever the reason.
	Rejected int
	// Isolated counts points with fewer than MinNeighbors neighbours, kept or not.
	Isolated int
	// Degenerate counts points whose neighbours were coincident or collinear.
	Degenerate     int
	NeighborMean   float64
	NeighborMedian float64
}

// Result is the outcome of a filter run.
type Result struct {
	// Kept holds the indices of the kept points in ascending order.
	Kept  []int
	Stats Stats
}

// Apply returns the points of cloud that the filter kept.
func (r *Result) Apply(cloud pc.PointCloud) pc.PointCloud {
	return pc.Subset(cloud, r.Kept)
}

// ApplyRejected returns the points of cloud that the filter removed, in cloud order.
func (r *Result) ApplyRejected(cloud pc.PointCloud) pc.PointCloud {
	rejected := make([]int, 0, cloud.Size()-len(r.Kept))
	next := 0
	for i := 0; i < cloud.Size(); i++ {
		if next < len(r.Kept) && r.Kept[next] == i {
			next++
			continue
		}
		rejected = append(rejected, i)
	}
	return pc.Subset(cloud, rejected)
}

// Passthrough returns the result of a disabled filter: every point is kept.
func Passthrough(cloud pc.PointCloud) *Result {
	kept := make([]int, cloud.Size())
	for i := range kept {
		kept[i] = i
	}
	return &Result{
		Kept:  kept,
		Stats: Stats{Input: len(kept), Kept: len(kept)},
	}
}

type options struct {
	parallelism int
}

// Option configures a filter run.
type Option func(*options)

// WithParallelism splits the points into n contiguous groups filtered concurrently. The result
// does not depend on n. A value below 1 uses utils.ParallelFactor.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

type verdict uint8

const (
	verdictKept = verdict(iota)
	verdictRejected
	verdictIsolatedKept
	verdictIsolatedRemoved
	verdictDegenerate
)

// Filter runs the noise filter over the cloud indexed by tree. For each point it gathers the
// neighbours within cfg.Radius; when there are at least MinNeighbors of them it fits a plane
// through the neighbours other than the point and keeps the point iff its distance to the plane
// is at most the threshold. Points with fewer neighbours are kept unless cfg.RemoveIsolated is set.
func Filter(ctx context.Context, tree *octree.Octree, cfg Config, opts ...Option) (*Result, error) {
	o := options{parallelism: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if tree == nil {
		return nil, NewFilterError("octree is not built")
	}
	if !isFinite(cfg.Radius) || cfg.Radius <= 0 {
		return nil, NewFilterError("invalid radius %v", cfg.Radius)
	}
	if cfg.UseAbsoluteError && (!isFinite(cfg.AbsoluteError) || cfg.AbsoluteError < 0) {
		return nil, NewFilterError("invalid absolute error %v", cfg.AbsoluteError)
	}
	if !cfg.UseAbsoluteError && (!isFinite(cfg.NSigma) || cfg.NSigma < 0) {
		return nil, NewFilterError("invalid n sigma %v", cfg.NSigma)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrFilter, err.Error())
	}

	cloud := tree.Cloud()
	size := cloud.Size()
	verdicts := make([]verdict, size)
	neighborCounts := make([]float64, size)
	// Each group walks its own batch of the cloud, so groups must agree on how many there are.
	var numGroups int
	var cancelled atomic.Bool
	err := utils.GroupWorkParallel(
		ctx,
		size,
		o.parallelism,
		func(n int) {
			numGroups = n
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			w := newWorker(tree, &cfg)
			return nil, func() {
				checked := 0
				cloud.Iterate(numGroups, groupNum, func(i int, p r3.Vector) bool {
					if checked%contextCheckInterval == 0 && ctx.Err() != nil {
						cancelled.Store(true)
						return false
					}
					checked++
					verdicts[i], neighborCounts[i] = w.classify(i, p)
					return true
				})
			}
		},
	)
	if err == nil && cancelled.Load() {
		err = ctx.Err()
	}
	if err != nil {
		return nil, errors.Wrap(ErrFilter, err.Error())
	}

	res := &Result{Kept: make([]int, 0, size)}
	res.Stats.Input = size
	for i, v := range verdicts {
		switch v {
		case verdictKept:
			res.Kept = append(res.Kept, i)
		case verdictRejected:
			res.Stats.Rejected++
		case verdictIsolatedKept:
			res.Kept = append(res.Kept, i)
			res.Stats.Isolated++
		case verdictIsolatedRemoved:
			res.Stats.Rejected++
			res.Stats.Isolated++
		case verdictDegenerate:
			res.Stats.Rejected++
			res.Stats.Degenerate++
		}
	}
	res.Stats.Kept = len(res.Kept)
	if res.Stats.Degenerate > 0 && res.Stats.Degenerate == size-res.Stats.Isolated {
		return nil, NewFilterError("no plane could be fitted in any of the %d neighbourhoods, all are coincident or collinear",
			res.Stats.Degenerate)
	}

	if res.Stats.NeighborMean, err = stats.Mean(neighborCounts); err != nil {
		return nil, errors.Wrap(ErrFilter, err.Error())
	}
	if res.Stats.NeighborMedian, err = stats.Median(neighborCounts); err != nil {
		return nil, errors.Wrap(ErrFilter, err.Error())
	}
	return res, nil
}

// worker classifies points. Each goroutine owns one.
type worker struct {
	cloud     pc.PointCloud
	cfg       *Config
	searcher  *octree.Searcher
	fitter    *planeFitter
	neighbors []r3.Vector
}

func newWorker(tree *octree.Octree, cfg *Config) *worker {
	return &worker{
		cloud:    tree.Cloud(),
		cfg:      cfg,
		searcher: tree.NewSearcher(),
		fitter:   newPlaneFitter(),
	}
}

// classify decides the fate of point i at p and returns it along with the size of its
// neighbourhood.
func (w *worker) classify(i int, p r3.Vector) (verdict, float64) {
	indices := w.searcher.Radius(p, w.cfg.Radius)
	count := float64(len(indices))
	if len(indices) < MinNeighbors {
		if w.cfg.RemoveIsolated {
			return verdictIsolatedRemoved, count
		}
		return verdictIsolatedKept, count
	}

	w.neighbors = w.neighbors[:0]
	for _, idx := range indices {
		if idx != i {
			w.neighbors = append(w.neighbors, w.cloud.At(idx))
		}
	}
	pl, ok := w.fitter.fit(w.neighbors)
	if !ok {
		return verdictDegenerate, count
	}

	var spread float64
	if !w.cfg.UseAbsoluteError {
		spread = w.fitter.spread(pl, w.neighbors)
	}
	d := pl.distance(p)
	if d < 0 {
		d = -d
	}
	if d > w.cfg.threshold(spread) {
		return verdictRejected, count
	}
	return verdictKept, count
}

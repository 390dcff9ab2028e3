// Package pipeline runs the denoise stages over one cloud file: load, index, filter and write.
package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"go.viam.com/denoise/denoise"
	"go.viam.com/denoise/logging"
	"go.viam.com/denoise/octree"
	pc "go.viam.com/denoise/pointcloud"
)

// Config is a fully resolved pipeline configuration. Paths are absolute.
type Config struct {
	InputPath       string
	OutputDir       string
	OutputCloudPath string
	SaveCloud       bool
	// SaveRejected also writes the removed points next to the filtered cloud.
	SaveRejected bool
	Filter          denoise.Config
	// Parallelism is the number of goroutines the filter stage uses. Values below 1 mean one.
	Parallelism int
}

// Stage names a step of the pipeline.
type Stage string

// The stages in the order they run.
const (
	StageLoad   Stage = "load"
	StageBuild  Stage = "build"
	StageFilter Stage = "filter"
	StageWrite  Stage = "write"
)

// StageTiming is the wall clock duration of one stage.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}

// Report describes a pipeline run. It is returned even when a stage fails and then holds what
// was measured up to the failure.
type Report struct {
	InputPath    string
	OutputPath   string
	RejectedPath string
	InputPoints  int
	OutputPoints int
	OutputBytes  int64
	// Filtered is false when the filter was disabled and the cloud passed through unchanged.
	Filtered bool
	Stats    denoise.Stats
	Timings  []StageTiming
}

// Total returns the summed duration of all stages that ran.
func (r *Report) Total() time.Duration {
	var total time.Duration
	for _, timing := range r.Timings {
		total += timing.Duration
	}
	return total
}

type options struct {
	clock      clock.Clock
	octreeOpts []octree.Option
}

// Option configures a pipeline run.
type Option func(*options)

// WithClock sets the clock used to time stages.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithOctreeOptions passes options to the octree build.
func WithOctreeOptions(opts ...octree.Option) Option {
	return func(o *options) {
		o.octreeOpts = append(o.octreeOpts, opts...)
	}
}

type runner struct {
	ctx    context.Context
	logger logging.Logger
	clock  clock.Clock
	report *Report
}

// stage runs fn as the named stage, recording its duration.
func (r *runner) stage(name Stage, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return errors.Wrapf(err, "%s stage not started", name)
	}
	start := r.clock.Now()
	err := fn()
	elapsed := r.clock.Since(start)
	r.report.Timings = append(r.report.Timings, StageTiming{Stage: name, Duration: elapsed})
	if err != nil {
		r.logger.Errorw("stage failed", "stage", name, "duration", elapsed, "error", err)
		return errors.Wrapf(err, "%s stage", name)
	}
	r.logger.Debugw("stage done", "stage", name, "duration", elapsed)
	return nil
}

// Run loads cfg.InputPath, filters it unless the filter is disabled, and writes the result
// unless saving is disabled. A failing stage stops the run; nothing is written unless every
// earlier stage succeeded. A nil logger means the global one.
func Run(ctx context.Context, cfg Config, logger logging.Logger, opts ...Option) (*Report, error) {
	if logger == nil {
		logger = logging.Global()
	}
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	r := &runner{
		ctx:    ctx,
		logger: logger,
		clock:  o.clock,
		report: &Report{InputPath: cfg.InputPath},
	}
	report := r.report

	var cloud pc.PointCloud
	if err := r.stage(StageLoad, func() error {
		var err error
		cloud, err = pc.NewFromFile(cfg.InputPath)
		return err
	}); err != nil {
		return report, err
	}
	report.InputPoints = cloud.Size()
	logger.Infow("loaded point cloud", "path", cfg.InputPath, "points", cloud.Size())
	if cloud.Size() > 0 {
		meta := cloud.MetaData()
		logger.Debugw("point cloud extent", "min", meta.Min(), "max", meta.Max(), "centroid", pc.CloudCentroid(cloud))
	}

	var result *denoise.Result
	if !cfg.Filter.Enable {
		logger.Info("filter disabled, passing the cloud through unchanged")
		result = denoise.Passthrough(cloud)
	} else {
		var tree *octree.Octree
		if err := r.stage(StageBuild, func() error {
			var err error
			tree, err = octree.Build(cloud, o.octreeOpts...)
			return err
		}); err != nil {
			return report, err
		}
		logger.Debugw("built octree", "nodes", tree.NumNodes(), "depth", tree.Depth())

		parallelism := cfg.Parallelism
		if parallelism < 1 {
			parallelism = 1
		}
		if err := r.stage(StageFilter, func() error {
			var err error
			result, err = denoise.Filter(ctx, tree, cfg.Filter, denoise.WithParallelism(parallelism))
			return err
		}); err != nil {
			return report, err
		}
		report.Filtered = true
	}
	report.Stats = result.Stats
	report.OutputPoints = result.Stats.Kept
	logger.Infow("filtered point cloud",
		"input", result.Stats.Input,
		"kept", result.Stats.Kept,
		"rejected", result.Stats.Rejected,
		"isolated", result.Stats.Isolated,
		"degenerate", result.Stats.Degenerate,
		"neighbor_mean", result.Stats.NeighborMean,
		"neighbor_median", result.Stats.NeighborMedian,
	)

	if !cfg.SaveCloud {
		logger.Info("saving disabled, not writing the filtered cloud")
		return report, nil
	}

	if err := r.stage(StageWrite, func() error {
		out, err := ResolveOutputPath(cfg)
		if err != nil {
			return err
		}
		if err := pc.WriteToFile(result.Apply(cloud), out); err != nil {
			return err
		}
		report.OutputPath = out
		info, err := os.Stat(out)
		if err != nil {
			return pc.NewIOError(out, err)
		}
		report.OutputBytes = info.Size()
		if !cfg.SaveRejected {
			return nil
		}
		rejected := RejectedFileName(out)
		if err := pc.WriteToFile(result.ApplyRejected(cloud), rejected); err != nil {
			return err
		}
		report.RejectedPath = rejected
		return nil
	}); err != nil {
		return report, err
	}
	logger.Infow("wrote filtered cloud",
		"path", report.OutputPath,
		"points", report.OutputPoints,
		"size", units.HumanSize(float64(report.OutputBytes)),
	)
	if report.RejectedPath != "" {
		logger.Infow("wrote rejected points", "path", report.RejectedPath, "points", report.InputPoints-report.OutputPoints)
	}
	return report, nil
}

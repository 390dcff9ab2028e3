// Package cli contains the denoise command line application.
package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/denoise/config"
	"go.viam.com/denoise/logging"
	"go.viam.com/denoise/pipeline"
	"go.viam.com/denoise/utils"
)

const (
	// Flags.
	flagDebug    = "debug"
	flagLogLevel = "log-level"
	flagParallel = "parallel"
	flagDryRun   = "dry-run"

	loggerName = "denoise"
)

// NewApp returns a new app running the denoise pipeline, with Writer set to out and ErrWriter
// set to errOut. Logs go to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	var logger logging.Logger
	return &cli.App{
		Name:            "denoise",
		Usage:           "remove noisy points from a point cloud",
		ArgsUsage:       "<config.yaml>",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "minimum level logged, one of debug, info, warn or error",
			},
			&cli.IntFlag{
				Name:  flagParallel,
				Value: 1,
				Usage: "number of goroutines filtering the cloud, 0 uses one per CPU",
			},
			&cli.BoolFlag{
				Name:  flagDryRun,
				Usage: "load and print the configuration without running the pipeline",
			},
		},
		Before: func(c *cli.Context) error {
			level := logging.DEBUG
			if !c.Bool(flagDebug) {
				var err error
				if level, err = logging.LevelFromString(c.String(flagLogLevel)); err != nil {
					return err
				}
			}
			logger = logging.NewBlankLogger(loggerName)
			logger.AddAppender(logging.NewWriterAppender(errOut))
			logger.SetLevel(level)
			logging.ReplaceGlobal(logger)
			return nil
		},
		Action: func(c *cli.Context) error {
			return DenoiseAction(c, logger)
		},
	}
}

// DenoiseAction loads the configuration file named by the only argument and runs the pipeline
// it describes, printing the stage timings.
func DenoiseAction(c *cli.Context, logger logging.Logger) error {
	if c.NArg() != 1 {
		return errors.Errorf("expected exactly one configuration file argument, got %d", c.NArg())
	}
	cfg, err := config.Load(c.Args().First())
	if err != nil {
		return err
	}
	parallelism := c.Int(flagParallel)
	if parallelism < 0 {
		return errors.Errorf("--%s must not be negative, got %d", flagParallel, parallelism)
	}
	if parallelism == 0 {
		parallelism = utils.ParallelFactor
	}
	pcfg := cfg.Pipeline(parallelism)
	logger.Debugw("loaded configuration", "path", cfg.ConfigFilePath, "input", pcfg.InputPath)

	if c.Bool(flagDryRun) {
		printfln(c.App.Writer, "%s", configTable(cfg, pcfg))
		return nil
	}

	report, err := pipeline.Run(c.Context, pcfg, logger)
	if report != nil && len(report.Timings) > 0 {
		printfln(c.App.Writer, "%s", timingTable(report))
	}
	if err != nil {
		return errors.Wrapf(err, "denoising %q", pcfg.InputPath)
	}
	printfln(c.App.Writer, "%s", summary(report))
	return nil
}

func printfln(w io.Writer, format string, args ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", args...)
}

func configTable(cfg *config.Config, pcfg pipeline.Config) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"config", cfg.ConfigFilePath},
		{"input", pcfg.InputPath},
		{"output dir", pcfg.OutputDir},
		{"output cloud", pcfg.OutputCloudPath},
		{"save cloud", strconv.FormatBool(pcfg.SaveCloud)},
		{"save rejected", strconv.FormatBool(pcfg.SaveRejected)},
		{"filter", strconv.FormatBool(pcfg.Filter.Enable)},
		{"radius", pcfg.Filter.Radius},
		{"n sigma", pcfg.Filter.NSigma},
		{"absolute error", pcfg.Filter.AbsoluteError},
		{"use absolute error", strconv.FormatBool(pcfg.Filter.UseAbsoluteError)},
		{"remove isolated", strconv.FormatBool(pcfg.Filter.RemoveIsolated)},
		{"parallelism", pcfg.Parallelism},
	})
	return t.Render()
}

func timingTable(report *pipeline.Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Stage", "Duration"})
	for _, timing := range report.Timings {
		t.AppendRow(table.Row{string(timing.Stage), timing.Duration.String()})
	}
	t.AppendFooter(table.Row{"Total", report.Total().String()})
	return t.Render()
}

func summary(report *pipeline.Report) string {
	s := fmt.Sprintf("filter disabled, %d points passed through", report.InputPoints)
	if report.Filtered {
		s = fmt.Sprintf("kept %d of %d points (%d rejected, %d isolated, %d degenerate), neighbours mean %.1f median %.1f",
			report.Stats.Kept, report.Stats.Input, report.Stats.Rejected, report.Stats.Isolated, report.Stats.Degenerate,
			report.Stats.NeighborMean, report.Stats.NeighborMedian)
	}
	if report.OutputPath != "" {
		s += fmt.Sprintf(", wrote %s to %s", units.HumanSize(float64(report.OutputBytes)), report.OutputPath)
	}
	if report.RejectedPath != "" {
		s += fmt.Sprintf(", rejected points to %s", report.RejectedPath)
	}
	return s
}

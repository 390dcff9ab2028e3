package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/denoise/config"
	"go.viam.com/denoise/logging"
	pc "go.viam.com/denoise/pointcloud"
	"go.viam.com/denoise/testutils"
	"go.viam.com/denoise/utils"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	err := app.Run(append([]string{"denoise"}, args...))
	return out.String(), errOut.String(), err
}

// setup writes a cloud and a config reading it, and returns the config path.
func setup(t *testing.T, filter string) (string, string) {
	t.Helper()
	dir := testutils.TempDir(t, "", "cli")
	test.That(t, pc.WriteToFile(testutils.UniformCloud(42, 500), filepath.Join(dir, "scan.pcd")), test.ShouldBeNil)
	body := "Base:\n  depth_path: scan.pcd\n  output_dir: out\nFilter:\n" + filter
	return dir, testutils.WriteFile(t, dir, "denoise.yaml", []byte(body))
}

func TestDenoise(t *testing.T) {
	dir, cfg := setup(t, "  radius: 0.15\n")
	out, errOut, err := runApp(t, "--parallel", "2", cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "load")
	test.That(t, out, test.ShouldContainSubstring, "filter")
	test.That(t, out, test.ShouldContainSubstring, "write")
	test.That(t, out, test.ShouldContainSubstring, "of 500 points")
	test.That(t, out, test.ShouldContainSubstring, "median")
	test.That(t, errOut, test.ShouldContainSubstring, "wrote filtered cloud")
	test.That(t, errOut, test.ShouldNotContainSubstring, "stage done")

	written, err := pc.NewFromFile(filepath.Join(dir, "out", "scan_denoised.pcd"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, written.Size(), test.ShouldBeLessThan, 500)
}

func TestDenoiseSaveRejected(t *testing.T) {
	dir, cfg := setup(t, "  radius: 0.15\n")
	body, err := os.ReadFile(cfg)
	test.That(t, err, test.ShouldBeNil)
	cfg = testutils.WriteFile(t, dir, "rejected.yaml",
		[]byte(strings.Replace(string(body), "Base:\n", "Base:\n  keep_statistics: true\n", 1)))

	out, _, err := runApp(t, cfg)
	test.That(t, err, test.ShouldBeNil)
	rejectedPath := filepath.Join(dir, "out", "scan_denoised_rejected.pcd")
	test.That(t, out, test.ShouldContainSubstring, "rejected points to "+rejectedPath)

	kept, err := pc.NewFromFile(filepath.Join(dir, "out", "scan_denoised.pcd"))
	test.That(t, err, test.ShouldBeNil)
	rejected, err := pc.NewFromFile(rejectedPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kept.Size()+rejected.Size(), test.ShouldEqual, 500)
}

func TestDenoiseParallelDefault(t *testing.T) {
	app := NewApp(&bytes.Buffer{}, &bytes.Buffer{})
	var parallel *cli.IntFlag
	for _, f := range app.Flags {
		if flag, ok := f.(*cli.IntFlag); ok && flag.Name == flagParallel {
			parallel = flag
		}
	}
	test.That(t, parallel, test.ShouldNotBeNil)
	test.That(t, parallel.Value, test.ShouldEqual, 1)

	_, cfg := setup(t, "")
	out, _, err := runApp(t, "--dry-run", cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, regexp.MustCompile(`\| parallelism\s+\|\s+1\s+\|`).MatchString(out), test.ShouldBeTrue)

	out, _, err = runApp(t, "--dry-run", "--parallel", "0", cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, regexp.MustCompile(`\| parallelism\s+\|\s+`+strconv.Itoa(utils.ParallelFactor)+`\s+\|`).MatchString(out),
		test.ShouldBeTrue)
}

func TestDenoiseFilterDisabled(t *testing.T) {
	dir, cfg := setup(t, "  enable: off\n")
	out, _, err := runApp(t, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "filter disabled, 500 points passed through")

	written, err := pc.NewFromFile(filepath.Join(dir, "out", "scan_denoised.pcd"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, written.Size(), test.ShouldEqual, 500)
}

func TestDenoiseDryRun(t *testing.T) {
	dir, cfg := setup(t, "")
	out, _, err := runApp(t, "--dry-run", cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, filepath.Join(dir, "scan.pcd"))
	test.That(t, out, test.ShouldContainSubstring, "remove isolated")

	_, err = os.Stat(filepath.Join(dir, "out", "scan_denoised.pcd"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestDenoiseDebug(t *testing.T) {
	_, cfg := setup(t, "")
	_, errOut, err := runApp(t, "--debug", cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errOut, test.ShouldContainSubstring, "stage done")
	test.That(t, logging.Global().GetLevel(), test.ShouldEqual, logging.DEBUG)

	_, errOut, err = runApp(t, "--log-level", "warn", cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errOut, test.ShouldBeEmpty)
	test.That(t, logging.Global().GetLevel(), test.ShouldEqual, logging.WARN)
}

func TestDenoiseErrors(t *testing.T) {
	_, _, err := runApp(t)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exactly one")

	dir, cfg := setup(t, "")
	_, _, err = runApp(t, "--log-level", "loud", cfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")

	_, _, err = runApp(t, "--parallel", "-1", cfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "parallel")

	bad := testutils.WriteFile(t, dir, "bad.yaml", []byte("Base:\n  output_dir: out\n"))
	_, _, err = runApp(t, bad)
	test.That(t, errors.Is(err, config.ErrConfig), test.ShouldBeTrue)

	missing := testutils.WriteFile(t, dir, "missing.yaml", []byte("Base:\n  depth_path: nothing.pcd\n"))
	out, _, err := runApp(t, missing)
	test.That(t, errors.Is(err, pc.ErrIO), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "load stage")
	test.That(t, out, test.ShouldContainSubstring, "load")
}

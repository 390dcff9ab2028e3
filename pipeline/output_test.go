package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	pc "go.viam.com/denoise/pointcloud"
	"go.viam.com/denoise/testutils"
)

func TestOutputFileName(t *testing.T) {
	test.That(t, OutputFileName("/data/scan.pcd"), test.ShouldEqual, "scan_denoised.pcd")
	test.That(t, OutputFileName("map.v2.PCD"), test.ShouldEqual, "map.v2_denoised.pcd")
	test.That(t, OutputFileName("cloud"), test.ShouldEqual, "cloud_denoised.pcd")
}

func TestResolveOutputPath(t *testing.T) {
	dir := testutils.TempDir(t, "", "output")
	input := filepath.Join(dir, "in", "scan.pcd")

	for _, tc := range []struct {
		name     string
		cfg      Config
		expected string
	}{
		{
			"output dir",
			Config{InputPath: input, OutputDir: filepath.Join(dir, "a")},
			filepath.Join(dir, "a", "scan_denoised.pcd"),
		},
		{
			"explicit file wins over dir",
			Config{InputPath: input, OutputDir: filepath.Join(dir, "a"), OutputCloudPath: filepath.Join(dir, "b", "x.PCD")},
			filepath.Join(dir, "b", "x.PCD"),
		},
		{
			"cloud path without extension is a directory",
			Config{InputPath: input, OutputCloudPath: filepath.Join(dir, "c")},
			filepath.Join(dir, "c", "scan_denoised.pcd"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ResolveOutputPath(tc.cfg)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, out, test.ShouldEqual, tc.expected)
			info, err := os.Stat(filepath.Dir(out))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, info.IsDir(), test.ShouldBeTrue)
		})
	}
}

func TestResolveOutputPathErrors(t *testing.T) {
	_, err := ResolveOutputPath(Config{InputPath: "scan.pcd"})
	test.That(t, err, test.ShouldNotBeNil)

	dir := testutils.TempDir(t, "", "output")
	blocker := testutils.WriteFile(t, dir, "blocker", []byte("file"))
	_, err = ResolveOutputPath(Config{InputPath: "scan.pcd", OutputDir: filepath.Join(blocker, "sub")})
	test.That(t, errors.Is(err, pc.ErrIO), test.ShouldBeTrue)

	input := filepath.Join(dir, "scan.pcd")
	_, err = ResolveOutputPath(Config{InputPath: input, OutputCloudPath: filepath.Join(dir, ".", "scan.pcd")})
	test.That(t, errors.Is(err, pc.ErrIO), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "overwrite the input")

	stem := filepath.Join(dir, "scan_denoised")
	_, err = ResolveOutputPath(Config{InputPath: stem + "_rejected.pcd", OutputCloudPath: stem + ".pcd", SaveRejected: true})
	test.That(t, errors.Is(err, pc.ErrIO), test.ShouldBeTrue)
}

func TestRejectedFileName(t *testing.T) {
	test.That(t, RejectedFileName(filepath.Join("out", "scan_denoised.pcd")), test.ShouldEqual,
		filepath.Join("out", "scan_denoised_rejected.pcd"))
	test.That(t, RejectedFileName("x.PCD"), test.ShouldEqual, "x_rejected.pcd")
}

package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	pc "go.viam.com/denoise/pointcloud"
)

const (
	// CloudExt is the extension of every cloud file read or written.
	CloudExt = ".pcd"
	// outputSuffix is appended to the input's stem to name a derived output file.
	outputSuffix = "_denoised"
	// rejectedSuffix is appended to the output's stem to name the file of removed points.
	rejectedSuffix = "_rejected"
)

// OutputFileName returns the derived name of the filtered cloud for the given input path.
func OutputFileName(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + outputSuffix + CloudExt
}

// RejectedFileName returns the path of the removed points written next to the output at outputPath.
func RejectedFileName(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + rejectedSuffix + CloudExt
}

// ResolveOutputPath decides where the filtered cloud is written and creates the directories it
// needs:
//   - an OutputCloudPath ending in .pcd is used as is;
//   - any other OutputCloudPath is a directory that receives the derived file name;
//   - otherwise the derived file name is placed in OutputDir.
//
// A path that would replace the input cloud is refused.
func ResolveOutputPath(cfg Config) (string, error) {
	name := OutputFileName(cfg.InputPath)
	var dir, out string
	switch {
	case cfg.OutputCloudPath != "" && strings.EqualFold(filepath.Ext(cfg.OutputCloudPath), CloudExt):
		out = cfg.OutputCloudPath
		dir = filepath.Dir(out)
	case cfg.OutputCloudPath != "":
		dir = cfg.OutputCloudPath
		out = filepath.Join(dir, name)
	case cfg.OutputDir != "":
		dir = cfg.OutputDir
		out = filepath.Join(dir, name)
	default:
		return "", errors.New("no output directory or output cloud path configured")
	}
	if filepath.Clean(out) == filepath.Clean(cfg.InputPath) {
		return "", pc.NewIOError(out, errors.New("output would overwrite the input cloud"))
	}
	if cfg.SaveRejected && filepath.Clean(RejectedFileName(out)) == filepath.Clean(cfg.InputPath) {
		return "", pc.NewIOError(out, errors.New("rejected points would overwrite the input cloud"))
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", pc.NewIOError(dir, err)
	}
	return out, nil
}

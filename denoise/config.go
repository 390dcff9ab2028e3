// Package denoise removes noisy points from a point cloud.
//
// Each point is compared with the least squares plane fitted through its neighbours within a
// fixed radius. A point whose distance to that plane exceeds the threshold is rejected. The
// threshold is either a multiple of the spread of the neighbours around the plane, or a fixed
// absolute distance.
package denoise

import (
	"math"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Config controls the noise filter. It is built once and never modified.
type Config struct {
	Enable           bool    `json:"enable"`
	Radius           float64 `json:"radius"`
	NSigma           float64 `json:"n_sigma"`
	RemoveIsolated   bool    `json:"remove_isolated"`
	UseAbsoluteError bool    `json:"use_absolute_error"`
	AbsoluteError    float64 `json:"absolute_error"`
}

// DefaultConfig returns the filter settings used for anything a configuration file leaves out.
func DefaultConfig() Config {
	return Config{Enable: true, Radius: 0.1, NSigma: 1, AbsoluteError: 0.5}
}

// Validate ensures all parts of the config are valid. A disabled filter is always valid.
func (cfg *Config) Validate(path string) error {
	if !cfg.Enable {
		return nil
	}
	if !isFinite(cfg.Radius) || cfg.Radius <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("radius must be a positive number, got %v", cfg.Radius))
	}
	if cfg.UseAbsoluteError {
		if !isFinite(cfg.AbsoluteError) || cfg.AbsoluteError < 0 {
			return utils.NewConfigValidationError(path,
				errors.Errorf("absolute_error must be a non-negative number, got %v", cfg.AbsoluteError))
		}
		return nil
	}
	if !isFinite(cfg.NSigma) || cfg.NSigma < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("n_sigma must be a non-negative number, got %v", cfg.NSigma))
	}
	return nil
}

// threshold returns the largest distance to the plane a point may have when the neighbours are
// spread around it with the given standard deviation.
func (cfg *Config) threshold(stdDev float64) float64 {
	if cfg.UseAbsoluteError {
		return cfg.AbsoluteError
	}
	return cfg.NSigma * stdDev
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

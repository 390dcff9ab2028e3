// Package config reads the denoise configuration file and resolves it into a pipeline
// configuration.
//
// The file has a Base and a Filter section. Most settings are accepted under several names;
// the first name present in the section wins. Relative input paths are resolved against the
// data root, and relative output paths against the directory holding the configuration file.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/denoise/denoise"
	"go.viam.com/denoise/pipeline"
	rutils "go.viam.com/denoise/utils"
)

// ErrConfig is the kind of every error returned while loading a configuration file.
var ErrConfig = errors.New("invalid configuration")

type configError struct {
	err error
}

func (e *configError) Error() string {
	return e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}

func (e *configError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError marks err as a configuration error.
func NewConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

// Section names.
const (
	SectionBase   = "base"
	SectionFilter = "filter"
)

// Accepted values of the cloud format and load mode settings.
const (
	FormatPCD = "pcd"
	FormatPLY = "ply"

	LoadModeMap    = "map"
	LoadModeFrames = "frames"
)

const defaultOutputDir = "output"

// BaseConfig holds the input and output settings.
type BaseConfig struct {
	DataRoot      string `json:"data_root"`
	InputPath     string `json:"depth_path"`
	OutputDir     string `json:"output_dir"`
	OutputPCDPath string `json:"output_pcd_path"`
	SavePCD       bool   `json:"save_pcd"`
	SaveRejected  bool   `json:"save_rejected"`
	Format        string `json:"pcl_type"`
	LoadMode      string `json:"pcl_load"`
}

// Config is a loaded configuration file. All paths in it are absolute.
type Config struct {
	Base   BaseConfig     `json:"base"`
	Filter denoise.Config `json:"filter"`

	ConfigFilePath string `json:"-"`
}

// Pipeline returns the pipeline configuration described by the file.
func (c *Config) Pipeline(parallelism int) pipeline.Config {
	return pipeline.Config{
		InputPath:       c.Base.InputPath,
		OutputDir:       c.Base.OutputDir,
		OutputCloudPath: c.Base.OutputPCDPath,
		SaveCloud:       c.Base.SavePCD,
		SaveRejected:    c.Base.SaveRejected,
		Filter:          c.Filter,
		Parallelism:     parallelism,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.Base.InputPath == "" {
		return utils.NewConfigValidationFieldRequiredError(SectionBase, "depth_path")
	}
	if c.Base.Format != FormatPCD {
		return utils.NewConfigValidationError(SectionBase,
			errors.Errorf("point cloud format %q is not supported, only %q is", c.Base.Format, FormatPCD))
	}
	if c.Base.LoadMode != LoadModeMap {
		return utils.NewConfigValidationError(SectionBase,
			errors.Errorf("load mode %q is not supported, only %q is", c.Base.LoadMode, LoadModeMap))
	}
	return c.Filter.Validate(SectionFilter)
}

// Load reads the configuration file at path, resolves its paths and creates the output
// directory. The returned config has been validated.
func Load(path string) (*Config, error) {
	configPath, err := filepath.Abs(path)
	if err != nil {
		return nil, NewConfigError(err)
	}
	//nolint:gosec
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, NewConfigError(errors.Wrapf(err, "cannot read config file %q", path))
	}
	raw, err := parseSections(data)
	if err != nil {
		return nil, NewConfigError(errors.Wrapf(err, "cannot parse config file %q", path))
	}
	attrs, err := resolveFields(raw)
	if err != nil {
		return nil, NewConfigError(errors.Wrapf(err, "config file %q", path))
	}

	cfg := &Config{
		Base: BaseConfig{
			OutputDir: defaultOutputDir,
			SavePCD:   true,
			Format:    FormatPCD,
			LoadMode:  LoadModeMap,
		},
		Filter:         denoise.DefaultConfig(),
		ConfigFilePath: configPath,
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: cfg})
	if err != nil {
		return nil, NewConfigError(err)
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, NewConfigError(errors.Wrapf(err, "config file %q", path))
	}

	if err := cfg.resolvePaths(filepath.Dir(configPath)); err != nil {
		return nil, NewConfigError(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError(err)
	}
	if err := os.MkdirAll(cfg.Base.OutputDir, 0o750); err != nil {
		return nil, NewConfigError(errors.Wrapf(err, "cannot create output directory %q", cfg.Base.OutputDir))
	}
	return cfg, nil
}

// resolvePaths makes every path in the base section absolute. The data root defaults to
// configDir and anchors the input path; the output paths are anchored at configDir.
func (c *Config) resolvePaths(configDir string) error {
	dataRoot := configDir
	if c.Base.DataRoot != "" {
		dataRoot = rutils.ResolveRelativeTo(configDir, c.Base.DataRoot)
	}
	var err error
	if c.Base.DataRoot, err = rutils.MakeAbsolute(dataRoot); err != nil {
		return err
	}
	if c.Base.InputPath, err = rutils.MakeAbsolute(rutils.ResolveRelativeTo(c.Base.DataRoot, c.Base.InputPath)); err != nil {
		return err
	}
	if c.Base.OutputDir == "" {
		c.Base.OutputDir = defaultOutputDir
	}
	if c.Base.OutputDir, err = rutils.MakeAbsolute(rutils.ResolveRelativeTo(configDir, c.Base.OutputDir)); err != nil {
		return err
	}
	c.Base.OutputPCDPath, err = rutils.MakeAbsolute(rutils.ResolveRelativeTo(configDir, c.Base.OutputPCDPath))
	return err
}

// canonicalKey lower cases a key and turns spaces, tabs and dashes into underscores.
func canonicalKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return '_'
		default:
			return r
		}
	}, key)
}

// parseSections decodes the document into its sections with canonical names and keys. Scalar
// entries at the top level are ignored.
func parseSections(data []byte) (map[string]map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	sections := map[string]map[string]interface{}{}
	for name, body := range doc {
		entries, ok := body.(map[string]interface{})
		if !ok && body != nil {
			continue
		}
		section := sections[canonicalKey(name)]
		if section == nil {
			section = map[string]interface{}{}
			sections[canonicalKey(name)] = section
		}
		for key, value := range entries {
			section[canonicalKey(key)] = value
		}
	}
	return sections, nil
}

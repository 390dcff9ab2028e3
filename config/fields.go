package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindFloat
	kindFormat
	kindLoadMode
)

// field is one logical setting. It is read from the first of its aliases present in its
// section and stored under name. A found value also stores implies.
type field struct {
	section string
	name    string
	aliases []string
	kind    valueKind
	implies map[string]interface{}
}

var fields = []field{
	{section: SectionBase, name: "data_root", aliases: []string{"data_root", "data_path"}, kind: kindString},
	{section: SectionBase, name: "save_pcd", aliases: []string{"save_pcd_en", "save_pcd", "save_output_en"}, kind: kindBool},
	{section: SectionBase, name: "save_rejected", aliases: []string{"save_rejected", "keep_statistics"}, kind: kindBool},
	{section: SectionBase, name: "output_dir", aliases: []string{"output_dir", "output_path"}, kind: kindString},
	{section: SectionBase, name: "output_pcd_path", aliases: []string{"output_pcd_path"}, kind: kindString},
	{section: SectionBase, name: "depth_path", aliases: []string{"depth_path"}, kind: kindString},
	{section: SectionBase, name: "pcl_type", aliases: []string{"pcl_type", "point_cloud_type"}, kind: kindFormat},
	{section: SectionBase, name: "pcl_load", aliases: []string{"pcl_load", "load_mode"}, kind: kindLoadMode},
	{section: SectionFilter, name: "enable", aliases: []string{"enable", "enabled", "denoise_en"}, kind: kindBool},
	{section: SectionFilter, name: "radius", aliases: []string{"radius"}, kind: kindFloat},
	{
		section: SectionFilter,
		name:    "n_sigma",
		aliases: []string{"n_sigma", "nsigma", "max_error", "maxerror"},
		kind:    kindFloat,
		implies: map[string]interface{}{"use_absolute_error": false},
	},
	{
		section: SectionFilter,
		name:    "absolute_error",
		aliases: []string{"absolute_error", "absoluteerror"},
		kind:    kindFloat,
		implies: map[string]interface{}{"use_absolute_error": true},
	},
	// use_absolute_error comes after the fields implying it so an explicit value wins.
	{section: SectionFilter, name: "use_absolute_error", aliases: []string{"use_absolute_error"}, kind: kindBool},
	{section: SectionFilter, name: "remove_isolated", aliases: []string{"remove_isolated"}, kind: kindBool},
}

var (
	trueWords  = []string{"true", "1", "yes", "on"}
	falseWords = []string{"false", "0", "no", "off"}

	formatWords = map[string][]string{
		FormatPCD: {"0", "pcd"},
		FormatPLY: {"1", "ply"},
	}
	loadModeWords = map[string][]string{
		LoadModeMap:    {"-1", "map", "full", "global"},
		LoadModeFrames: {"1", "frames", "multi", "sequence"},
	}
)

// pick returns the value of the first alias present in section, and the alias it was found
// under. Null values count as absent.
func pick(section map[string]interface{}, aliases []string) (string, interface{}, bool) {
	for _, alias := range aliases {
		if value, ok := section[alias]; ok && value != nil {
			return alias, value, true
		}
	}
	return "", nil, false
}

// resolveFields reads every known field from the raw sections and returns the values keyed by
// section and field name, converted to the types the config struct expects. Unknown keys are
// ignored.
func resolveFields(raw map[string]map[string]interface{}) (map[string]interface{}, error) {
	resolved := map[string]map[string]interface{}{
		SectionBase:   {},
		SectionFilter: {},
	}
	for _, f := range fields {
		key, value, ok := pick(raw[f.section], f.aliases)
		if !ok {
			continue
		}
		converted, err := convert(f.kind, value)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s.%s", f.section, key)
		}
		resolved[f.section][f.name] = converted
		for name, implied := range f.implies {
			resolved[f.section][name] = implied
		}
	}
	return map[string]interface{}{
		SectionBase:   resolved[SectionBase],
		SectionFilter: resolved[SectionFilter],
	}, nil
}

func convert(kind valueKind, value interface{}) (interface{}, error) {
	switch kind {
	case kindString:
		return cast.ToStringE(value)
	case kindBool:
		return parseBool(value)
	case kindFloat:
		return cast.ToFloat64E(value)
	case kindFormat:
		return parseWord(value, formatWords, "pcd/ply or 0/1")
	case kindLoadMode:
		return parseWord(value, loadModeWords, "map/frames or -1/1")
	default:
		return nil, errors.Errorf("unknown value kind %d", kind)
	}
}

func parseBool(value interface{}) (bool, error) {
	s, ok := value.(string)
	if !ok {
		return cast.ToBoolE(value)
	}
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch {
	case lo.Contains(trueWords, normalized):
		return true, nil
	case lo.Contains(falseWords, normalized):
		return false, nil
	default:
		return false, errors.Errorf("cannot parse %q as a boolean", s)
	}
}

// parseWord maps value onto the key of words whose list contains it.
func parseWord(value interface{}, words map[string][]string, accepted string) (string, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return "", err
	}
	normalized := strings.ToLower(strings.TrimSpace(s))
	for word, spellings := range words {
		if lo.Contains(spellings, normalized) {
			return word, nil
		}
	}
	return "", errors.Errorf("%q is not one of %s", s, accepted)
}

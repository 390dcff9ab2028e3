package utils

import "path/filepath"

// ResolveRelativeTo joins a relative candidate path onto anchor and cleans the result. Absolute
// candidates and an empty anchor leave the candidate as is apart from cleaning. An empty
// candidate stays empty.
func ResolveRelativeTo(anchor, candidate string) string {
	if candidate == "" {
		return ""
	}
	if filepath.IsAbs(candidate) || anchor == "" {
		return filepath.Clean(candidate)
	}
	return filepath.Join(anchor, candidate)
}

// MakeAbsolute returns the cleaned absolute form of path. An empty path stays empty.
func MakeAbsolute(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}

package testutils

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

// TempDir creates a temporary directory and fails the test if it cannot.
func TempDir(t *testing.T, dir, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp(dir, pattern)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, os.RemoveAll(dir), test.ShouldBeNil)
	})
	return dir
}

// WriteFile writes data to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	fn := filepath.Join(dir, name)
	test.That(t, os.MkdirAll(filepath.Dir(fn), 0o750), test.ShouldBeNil)
	test.That(t, os.WriteFile(fn, data, 0o600), test.ShouldBeNil)
	return fn
}

// PCDBytes returns header followed by each record encoded little endian with encoding/binary.
func PCDBytes(t *testing.T, header string, records ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(header)
	for _, r := range records {
		test.That(t, binary.Write(&buf, binary.LittleEndian, r), test.ShouldBeNil)
	}
	return buf.Bytes()
}

package pointcloud

import (
	"github.com/pkg/errors"
)

var (
	// ErrIO is returned when a cloud file cannot be opened, read or written.
	ErrIO = errors.New("point cloud i/o error")
	// ErrFormat is returned for a malformed or unsupported PCD header.
	ErrFormat = errors.New("malformed pcd header")
	// ErrTruncatedData is returned when the body holds fewer bytes than the header declares.
	ErrTruncatedData = errors.New("truncated pcd data")
	// ErrUnsupportedFieldType is returned for a coordinate field whose type and size cannot be decoded.
	ErrUnsupportedFieldType = errors.New("unsupported pcd field type")
	// ErrAllocation is returned when storage for the declared point count cannot be reserved.
	ErrAllocation = errors.New("point cloud allocation failed")
)

// NewIOError is used when a file operation on path fails.
func NewIOError(path string, err error) error {
	return errors.Wrapf(ErrIO, "%q: %v", path, err)
}

// NewFormatError is used when the header is malformed.
func NewFormatError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrFormat, format, args...)
}

// NewTruncatedDataError is used when record number index cannot be read in full.
func NewTruncatedDataError(index, declared uint64, want, got int) error {
	return errors.Wrapf(ErrTruncatedData,
		"record %d of %d: expected %d bytes but only %d available", index, declared, want, got)
}

// NewUnsupportedFieldTypeError is used when a coordinate field cannot be decoded.
func NewUnsupportedFieldTypeError(field string, typ FieldType, size int) error {
	return errors.Wrapf(ErrUnsupportedFieldType, "field %q has type %s with size %d", field, typ, size)
}

// NewAllocationError is used when the declared point count cannot be stored.
func NewAllocationError(points uint64) error {
	return errors.Wrapf(ErrAllocation, "cannot reserve storage for %d points", points)
}

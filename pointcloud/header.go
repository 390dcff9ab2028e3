package pointcloud

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FieldType is the one letter PCD type tag of a field.
type FieldType byte

const (
	// FieldFloat is an IEEE 754 floating point field.
	FieldFloat FieldType = 'F'
	// FieldInt is a signed integer field.
	FieldInt FieldType = 'I'
	// FieldUint is an unsigned integer field.
	FieldUint FieldType = 'U'
)

func (t FieldType) String() string {
	return string(t)
}

// Defaults applied to every field when a SIZE, TYPE or COUNT list is absent or does not line up
// with FIELDS.
const (
	defaultFieldSize  = 4
	defaultFieldType  = FieldFloat
	defaultFieldCount = 1
)

// pcdCommentChar starts a comment that runs to the end of the line.
const pcdCommentChar = "#"

// FieldDescriptor describes one field of a PCD record.
type FieldDescriptor struct {
	Name   string
	Offset int
	Size   int
	Type   FieldType
	Count  int
}

// Header is the schema parsed from a PCD header.
type Header struct {
	Version   string
	Fields    []FieldDescriptor
	Width     uint64
	Height    uint64
	Viewpoint []float64
	Points    uint64
	Data      string

	// Stride is the number of bytes of one record.
	Stride int
	// X, Y and Z are the resolved coordinate fields.
	X, Y, Z FieldDescriptor
}

// headerDirectives collects the raw directive values in the order they are read.
type headerDirectives struct {
	version   string
	fields    []string
	sizes     []int
	types     []FieldType
	counts    []int
	width     *uint64
	height    *uint64
	viewpoint []float64
	points    *uint64
	data      string
	dataFound bool
}

// ParseHeader reads header lines from in up to and including the DATA line, leaving in
// positioned at the first byte of the first record.
func ParseHeader(in *bufio.Reader) (*Header, error) {
	var directives headerDirectives
	for !directives.dataFound {
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrIO, err.Error())
		}
		if err := directives.parseLine(line); err != nil {
			return nil, err
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return directives.resolve()
}

func (d *headerDirectives) parseLine(line string) error {
	line, _, _ = strings.Cut(line, pcdCommentChar)
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}
	key, values := strings.ToUpper(tokens[0]), tokens[1:]

	var err error
	switch key {
	case "VERSION":
		d.version = strings.Join(values, " ")
	case "FIELDS":
		d.fields = append([]string(nil), values...)
	case "SIZE":
		d.sizes, err = parseInts(key, values)
	case "TYPE":
		d.types = make([]FieldType, len(values))
		for i, v := range values {
			d.types[i] = FieldType(strings.ToUpper(v)[0])
		}
	case "COUNT":
		d.counts, err = parseInts(key, values)
	case "WIDTH":
		d.width, err = parseCount(key, values)
	case "HEIGHT":
		d.height, err = parseCount(key, values)
	case "VIEWPOINT":
		d.viewpoint = make([]float64, len(values))
		for i, v := range values {
			if d.viewpoint[i], err = strconv.ParseFloat(v, 64); err != nil {
				return NewFormatError("invalid VIEWPOINT value %q", v)
			}
		}
	case "POINTS":
		d.points, err = parseCount(key, values)
	case "DATA":
		d.data = strings.ToLower(strings.Join(values, " "))
		d.dataFound = true
	}
	return err
}

func parseInts(key string, values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.ParseUint(v, 10, 31)
		if err != nil {
			return nil, NewFormatError("invalid %s value %q", key, v)
		}
		out[i] = int(n)
	}
	return out, nil
}

func parseCount(key string, values []string) (*uint64, error) {
	if len(values) != 1 {
		return nil, NewFormatError("%s expects one value but got %d", key, len(values))
	}
	n, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return nil, NewFormatError("invalid %s value %q", key, values[0])
	}
	return &n, nil
}

// resolve lays out the fields and checks the coordinate fields.
func (d *headerDirectives) resolve() (*Header, error) {
	if !d.dataFound {
		return nil, NewFormatError("missing DATA line")
	}
	if d.data != "binary" {
		return nil, NewFormatError("unsupported DATA mode %q, only binary is supported", d.data)
	}
	if len(d.fields) == 0 {
		return nil, NewFormatError("missing FIELDS line")
	}

	n := len(d.fields)
	if len(d.sizes) != n {
		d.sizes = filled(n, defaultFieldSize)
	}
	if len(d.types) != n {
		d.types = filled(n, defaultFieldType)
	}
	if len(d.counts) != n {
		d.counts = filled(n, defaultFieldCount)
	}

	header := &Header{
		Version:   d.version,
		Viewpoint: d.viewpoint,
		Data:      d.data,
		Fields:    make([]FieldDescriptor, n),
	}
	var found [3]bool
	offset := 0
	for i, name := range d.fields {
		field := FieldDescriptor{
			Name:   name,
			Offset: offset,
			Size:   d.sizes[i],
			Type:   d.types[i],
			Count:  d.counts[i],
		}
		header.Fields[i] = field
		width := uint64(field.Size) * uint64(field.Count)
		if width > MaxStride || uint64(offset)+width > MaxStride {
			return nil, NewFormatError("record stride too large: field %q needs %d bytes at offset %d, limit is %d",
				name, width, offset, MaxStride)
		}
		offset += int(width)
		if field.Count != 1 {
			continue
		}
		switch strings.ToLower(name) {
		case "x":
			header.X, found[0] = field, true
		case "y":
			header.Y, found[1] = field, true
		case "z":
			header.Z, found[2] = field, true
		}
	}
	for i, axis := range []string{"x", "y", "z"} {
		if !found[i] {
			return nil, NewFormatError("missing %s field", axis)
		}
	}
	for _, field := range []FieldDescriptor{header.X, header.Y, header.Z} {
		if decoderFor(field) == nil {
			return nil, NewUnsupportedFieldTypeError(field.Name, field.Type, field.Size)
		}
	}
	header.Stride = offset

	if d.width != nil {
		header.Width = *d.width
	}
	if d.height != nil {
		header.Height = *d.height
	}
	switch {
	case d.points != nil:
		header.Points = *d.points
	case d.width != nil && d.height != nil:
		header.Points = header.Width * header.Height
	}
	return header, nil
}

func filled[T any](n int, v T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

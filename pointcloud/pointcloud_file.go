package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"unsafe"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

const (
	// MaxPoints is the largest point count a cloud file may declare.
	MaxPoints = math.MaxInt32
	// MaxStride is the largest record, in bytes, a cloud file may declare.
	MaxStride = 1 << 20

	// initialCapacity bounds the storage reserved up front. Larger clouds grow as they are read.
	initialCapacity = 1 << 20
)

// pcdWriterComment is the first line of every written file.
const pcdWriterComment = "# Filtered by denoise"

// fieldDecoder turns the raw bytes of one field into a coordinate.
type fieldDecoder func(b []byte) float64

// decoderFor returns the decoder for the (type,size) pair of field, or nil when the pair is not
// supported.
func decoderFor(field FieldDescriptor) fieldDecoder {
	switch {
	case field.Type == FieldFloat && field.Size == 4:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	case field.Type == FieldFloat && field.Size == 8:
		return func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
	case field.Type == FieldInt && field.Size == 4:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b)))
		}
	case field.Type == FieldUint && field.Size == 4:
		return func(b []byte) float64 {
			return float64(binary.LittleEndian.Uint32(b))
		}
	default:
		return nil
	}
}

// NewFromFile returns a pointcloud read in from the given binary PCD file.
func NewFromFile(fn string) (PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, NewIOError(fn, err)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	info, err := f.Stat()
	if err != nil {
		return nil, NewIOError(fn, err)
	}
	cloud, err := readPCD(f, info.Size())
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %q", fn)
	}
	return cloud, nil
}

// ReadPCD reads a binary PCD stream. Only the x, y and z fields of each record are kept.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	return readPCD(inRaw, -1)
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// readPCD reads a binary PCD stream of total bytes, or of unknown length when total is negative.
// A known length lets a short body fail before any record is read.
func readPCD(inRaw io.Reader, total int64) (PointCloud, error) {
	counter := &countingReader{r: inRaw}
	in := bufio.NewReader(counter)
	header, err := ParseHeader(in)
	if err != nil {
		return nil, err
	}
	if total >= 0 {
		body := total - (counter.n - int64(in.Buffered()))
		if err := checkBody(header, body); err != nil {
			return nil, err
		}
	}
	return readPCDBinary(in, header)
}

// checkBody fails with the first record that a body of the given size cannot hold.
func checkBody(header *Header, body int64) error {
	if body < 0 || header.Stride <= 0 || header.Points > MaxPoints {
		return nil
	}
	stride := int64(header.Stride)
	if available := uint64(body / stride); header.Points > available {
		return NewTruncatedDataError(available, header.Points, header.Stride, int(body%stride))
	}
	return nil
}

func readPCDBinary(in io.Reader, header *Header) (PointCloud, error) {
	cloud, err := reserve(header.Points)
	if err != nil {
		return nil, err
	}
	decodeX, decodeY, decodeZ := decoderFor(header.X), decoderFor(header.Y), decoderFor(header.Z)
	if decodeX == nil || decodeY == nil || decodeZ == nil {
		return nil, NewFormatError("header has no decodable x, y and z fields")
	}

	record := make([]byte, header.Stride)
	for i := uint64(0); i < header.Points; i++ {
		n, err := io.ReadFull(in, record)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, NewTruncatedDataError(i, header.Points, header.Stride, n)
			}
			return nil, errors.Wrapf(ErrIO, "reading record %d: %v", i, err)
		}
		cloud.add(NewVector(
			decodeX(record[header.X.Offset:]),
			decodeY(record[header.Y.Offset:]),
			decodeZ(record[header.Z.Offset:]),
		))
	}
	return cloud, nil
}

// reserve returns an empty cloud with room for points, failing before allocating when the
// count cannot be addressed.
func reserve(points uint64) (*basicPointCloud, error) {
	if points > MaxPoints {
		return nil, NewAllocationError(points)
	}
	if points > uint64(math.MaxInt)/uint64(unsafe.Sizeof(r3.Vector{})) {
		return nil, NewAllocationError(points)
	}
	return newWithPrealloc(int(min(points, initialCapacity))), nil
}

// ToPCD writes cloud as binary PCD with x, y and z stored as little endian float32.
func ToPCD(cloud PointCloud, out io.Writer) error {
	_, err := fmt.Fprintf(out, "%s\n"+
		"VERSION 0.7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA binary\n",
		pcdWriterComment,
		cloud.Size(),
		cloud.Size())
	if err != nil {
		return err
	}
	return writePCDData(cloud, out)
}

func writePCDData(cloud PointCloud, out io.Writer) error {
	buf := make([]byte, 12)
	var err error
	cloud.Iterate(0, 0, func(_ int, p r3.Vector) bool {
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
		_, err = out.Write(buf)
		return err == nil
	})
	return err
}

// WriteToFile writes cloud to fn as binary PCD, replacing any existing file.
func WriteToFile(cloud PointCloud, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return NewIOError(fn, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierr.Combine(err, NewIOError(fn, closeErr))
		}
	}()

	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w); err != nil {
		return NewIOError(fn, err)
	}
	if err := w.Flush(); err != nil {
		return NewIOError(fn, err)
	}
	return nil
}

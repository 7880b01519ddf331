package brevent

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Errors returned by the frame codec.
var (
	// ErrFrameTooLarge is matched by *FrameTooLargeError.
	ErrFrameTooLarge = errors.New("brevent: frame too large")
	// ErrTruncatedFrame is returned when the stream ends before the declared frame length.
	ErrTruncatedFrame = errors.New("brevent: truncated frame")
	// ErrCorruptFrame is returned when a frame cannot be decompressed or its record is malformed.
	ErrCorruptFrame = errors.New("brevent: corrupt frame")
)

// errRecordTooLarge is returned by limitedReader when a record exceeds the decompression limit.
var errRecordTooLarge = errors.New("record exceeds size limit")

// FrameTooLargeError reports a compressed record that does not fit in one frame.
// Nothing is written when it is returned.
type FrameTooLargeError struct {
	Size int
}

// Error reports the compressed size and the frame limit.
func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("brevent: frame too large: %d bytes (max %d)", e.Size, MaxFrameSize)
}

// Is matches ErrFrameTooLarge.
func (e *FrameTooLargeError) Is(target error) bool {
	return target == ErrFrameTooLarge
}

// CorruptFrameError reports a frame whose payload did not decode to a record.
type CorruptFrameError struct {
	Err error
}

// Error includes the underlying decode failure.
func (e *CorruptFrameError) Error() string {
	return "brevent: corrupt frame: " + e.Err.Error()
}

// Is matches ErrCorruptFrame.
func (e *CorruptFrameError) Is(target error) bool {
	return target == ErrCorruptFrame
}

// Unwrap returns the decode failure, such as ErrShortRecord.
func (e *CorruptFrameError) Unwrap() error {
	return e.Err
}

const (
	// MaxFrameSize is the largest compressed record a frame can carry.
	MaxFrameSize = 0xffff
	// frameHeaderLen is the size of the big-endian length prefix.
	frameHeaderLen = 2
	// defaultMaxRecordSize caps a decompressed record (1MB).
	defaultMaxRecordSize = 1024 * 1024
)

var emptyFrame = [frameHeaderLen]byte{}

// limitedReader wraps a reader and returns errRecordTooLarge when the limit is exceeded.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func newLimitedReader(r io.Reader, limit int64) *limitedReader {
	return &limitedReader{r: r, remaining: limit}
}

func (l *limitedReader) Read(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		// At the limit: only a clean end of stream is acceptable.
		var one [1]byte
		n, err = l.r.Read(one[:])
		if n > 0 {
			return 0, errRecordTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err = l.r.Read(p)
	l.remaining -= int64(n)
	return
}

// FrameCodec encodes messages as gzip-compressed records behind a 2-byte length prefix.
type FrameCodec struct {
	level         int
	maxRecordSize int
	metrics       *Metrics
}

// CodecOption configures a FrameCodec.
type CodecOption func(*FrameCodec)

// CompressionLevelOption sets the gzip compression level.
func CompressionLevelOption(level int) CodecOption {
	return func(c *FrameCodec) {
		c.level = level
	}
}

// MaxRecordSizeOption caps the size of a decompressed record.
// Frames that inflate beyond it are rejected as corrupt.
func MaxRecordSizeOption(size int) CodecOption {
	return func(c *FrameCodec) {
		c.maxRecordSize = size
	}
}

// CodecMetricsOption sets the metrics the codec reports to.
func CodecMetricsOption(m *Metrics) CodecOption {
	return func(c *FrameCodec) {
		c.metrics = m
	}
}

// NewFrameCodec creates a codec with the given options.
func NewFrameCodec(opts ...CodecOption) *FrameCodec {
	c := &FrameCodec{
		level:         gzip.DefaultCompression,
		maxRecordSize: defaultMaxRecordSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRecordSize <= 0 {
		c.maxRecordSize = defaultMaxRecordSize
	}
	return c
}

var defaultCodec = NewFrameCodec()

// Encode returns the complete frame for m. A nil m, including a typed nil
// pointer to a variant, encodes as the empty frame.
func (c *FrameCodec) Encode(m Message) ([]byte, error) {
	if isNilMessage(m) {
		c.metrics.frameWritten(nil, 0)
		return make([]byte, frameHeaderLen), nil
	}

	compressed, err := c.compress(MarshalRecord(m))
	if err != nil {
		c.metrics.codecError("compress")
		return nil, errors.Wrapf(err, "brevent: compress %s", m.Action())
	}

	frame, err := appendFrame(nil, compressed)
	if err != nil {
		c.metrics.codecError("too_large")
		return nil, err
	}

	c.metrics.frameWritten(m, len(compressed))
	return frame, nil
}

// Decode reads exactly one frame from r.
//
// A clean end of stream before the length prefix returns io.EOF. The empty frame
// and unknown actions return a nil Message with a nil error.
func (c *FrameCodec) Decode(r io.Reader) (Message, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			c.metrics.codecError("truncated")
			return nil, errors.Wrap(ErrTruncatedFrame, "length prefix")
		}
		return nil, err
	}

	size := int(binary.BigEndian.Uint16(header[:]))
	if size == 0 {
		c.metrics.frameRead("empty", 0)
		return nil, nil
	}

	payload := make([]byte, size)
	if n, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.metrics.codecError("truncated")
			return nil, errors.Wrapf(ErrTruncatedFrame, "got %d of %d bytes", n, size)
		}
		return nil, err
	}

	record, err := c.uncompress(payload)
	if err != nil {
		c.metrics.codecError("corrupt")
		return nil, err
	}

	m, err := UnmarshalRecord(record)
	if err != nil {
		c.metrics.codecError("corrupt")
		return nil, err
	}
	if m == nil {
		c.metrics.frameRead("unknown", size)
		return nil, nil
	}

	c.metrics.frameRead(m.Action().String(), size)
	return m, nil
}

// WriteMessage encodes m and writes the frame to w in a single Write.
func (c *FrameCodec) WriteMessage(w io.Writer, m Message) error {
	frame, err := c.Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame from r. See Decode.
func (c *FrameCodec) ReadMessage(r io.Reader) (Message, error) {
	return c.Decode(r)
}

func (c *FrameCodec) compress(record []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(record); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *FrameCodec) uncompress(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &CorruptFrameError{Err: errors.Wrap(err, "gzip header")}
	}
	defer gz.Close()

	record, err := io.ReadAll(newLimitedReader(gz, int64(c.maxRecordSize)))
	if err != nil {
		return nil, &CorruptFrameError{Err: errors.Wrap(err, "inflate")}
	}
	return record, nil
}

// appendFrame appends the length prefix and payload to dst.
func appendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, &FrameTooLargeError{Size: len(payload)}
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

// WriteMessage writes m to w using the default codec.
func WriteMessage(w io.Writer, m Message) error {
	return defaultCodec.WriteMessage(w, m)
}

// ReadMessage reads one message from r using the default codec.
func ReadMessage(r io.Reader) (Message, error) {
	return defaultCodec.Decode(r)
}

// WriteEmptyFrame writes the zero-length frame that stands for "no message".
// It bypasses compression entirely.
func WriteEmptyFrame(w io.Writer) error {
	_, err := w.Write(emptyFrame[:])
	return err
}

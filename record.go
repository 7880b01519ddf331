package brevent

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// ErrShortRecord is returned when a record ends before its shape is fully read.
var ErrShortRecord = errors.New("brevent: short record")

// ErrTrailingBytes is returned when a record carries bytes past its shape.
var ErrTrailingBytes = errors.New("brevent: trailing bytes in record")

// maxRecordItems bounds counted sequences so a hostile count cannot force a huge allocation.
const maxRecordItems = 1 << 16

// RecordWriter serializes message fields into a record.
// All integers are big-endian and fixed width.
type RecordWriter struct {
	buf bytes.Buffer
}

// Bytes returns the record written so far.
func (w *RecordWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// WriteInt32 writes v as 4 big-endian bytes.
func (w *RecordWriter) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

// WriteInt64 writes v as 8 big-endian bytes.
func (w *RecordWriter) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

// WriteBool writes v as an int32 (1 or 0).
func (w *RecordWriter) WriteBool(v bool) {
	if v {
		w.WriteInt32(1)
		return
	}
	w.WriteInt32(0)
}

// WriteBytes writes a length-prefixed byte slice.
func (w *RecordWriter) WriteBytes(b []byte) {
	w.WriteInt32(int32(len(b)))
	w.buf.Write(b)
}

// WriteRaw writes b without a length prefix; the reader must know its size.
func (w *RecordWriter) WriteRaw(b []byte) {
	w.buf.Write(b)
}

// WriteString writes the byte length of s followed by its UTF-8 bytes.
func (w *RecordWriter) WriteString(s string) {
	w.WriteInt32(int32(len(s)))
	w.buf.WriteString(s)
}

// WriteStrings writes a count followed by each string. A nil list writes count 0.
func (w *RecordWriter) WriteStrings(list []string) {
	w.WriteInt32(int32(len(list)))
	for _, s := range list {
		w.WriteString(s)
	}
}

// WriteStringInt32Map writes a counted map with keys in sorted order,
// so equal maps always produce equal records.
func (w *RecordWriter) WriteStringInt32Map(m map[string]int32) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.WriteInt32(int32(len(keys)))
	for _, k := range keys {
		w.WriteString(k)
		w.WriteInt32(m[k])
	}
}

// RecordReader reads fields back out of a record.
// The first failure is sticky: later reads return zero values and Err reports it.
type RecordReader struct {
	data []byte
	off  int
	err  error
}

// NewRecordReader returns a reader over data. It does not copy data.
func NewRecordReader(data []byte) *RecordReader {
	return &RecordReader{data: data}
}

// Err returns the first error encountered while reading.
func (r *RecordReader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *RecordReader) Remaining() int {
	return len(r.data) - r.off
}

func (r *RecordReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = ErrShortRecord
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadInt32 reads 4 big-endian bytes.
func (r *RecordReader) ReadInt32() int32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// ReadInt64 reads 8 big-endian bytes.
func (r *RecordReader) ReadInt64() int64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// ReadBool reads an int32; any non-zero value is true.
func (r *RecordReader) ReadBool() bool {
	return r.ReadInt32() != 0
}

// ReadBytes reads a length-prefixed byte slice.
func (r *RecordReader) ReadBytes() []byte {
	n := r.ReadInt32()
	b := r.next(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReadRaw reads exactly n bytes written by WriteRaw.
func (r *RecordReader) ReadRaw(n int) []byte {
	b := r.next(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadString reads a length-prefixed string.
func (r *RecordReader) ReadString() string {
	n := r.ReadInt32()
	return string(r.next(int(n)))
}

// ReadStrings reads a counted list. An empty list decodes as nil.
func (r *RecordReader) ReadStrings() []string {
	n := r.count()
	if n == 0 {
		return nil
	}
	list := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		list = append(list, r.ReadString())
	}
	if r.err != nil {
		return nil
	}
	return list
}

// ReadStringInt32Map reads a counted map. An empty map decodes as nil.
func (r *RecordReader) ReadStringInt32Map() map[string]int32 {
	n := r.count()
	if n == 0 {
		return nil
	}
	m := make(map[string]int32, n)
	for i := 0; i < n && r.err == nil; i++ {
		k := r.ReadString()
		m[k] = r.ReadInt32()
	}
	if r.err != nil {
		return nil
	}
	return m
}

func (r *RecordReader) count() int {
	n := r.ReadInt32()
	if r.err != nil {
		return 0
	}
	if n < 0 || n > maxRecordItems {
		r.err = ErrShortRecord
		return 0
	}
	return int(n)
}

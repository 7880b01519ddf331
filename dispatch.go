package brevent

import "github.com/pkg/errors"

// MarshalRecord encodes m as an uncompressed record: the envelope followed by the variant fields.
// m must not be nil.
func MarshalRecord(m Message) []byte {
	var w RecordWriter
	m.header().marshal(&w)
	m.MarshalRecord(&w)
	return w.Bytes()
}

// UnmarshalRecord decodes an uncompressed record.
// The embedded action selects the variant; an unknown action yields a nil Message
// and a nil error so frames from newer peers are skipped silently.
// A known variant must consume the whole record; trailing bytes are corrupt.
func UnmarshalRecord(b []byte) (Message, error) {
	r := NewRecordReader(b)
	e := unmarshalEnvelope(r)
	if err := r.Err(); err != nil {
		return nil, &CorruptFrameError{Err: errors.Wrap(err, "envelope")}
	}

	var m Message
	switch e.action {
	case ActionStatusRequest:
		m = unmarshalStatusRequest(e, r)
	case ActionStatusResponse:
		m = unmarshalStatusResponse(e, r)
	case ActionUpdateBrevent:
		m = unmarshalUpdateBrevent(e, r)
	case ActionConfiguration:
		m = unmarshalConfiguration(e, r)
	case ActionUpdatePriority:
		m = unmarshalUpdatePriority(e, r)
	case ActionStatusNoEvent:
		m = unmarshalStatusNoEvent(e, r)
	case ActionShowRoot:
		m = &ShowRoot{envelope: e}
	default:
		return nil, nil
	}

	if err := r.Err(); err != nil {
		return nil, &CorruptFrameError{Err: errors.Wrap(err, e.action.String())}
	}
	if n := r.Remaining(); n > 0 {
		return nil, &CorruptFrameError{Err: errors.Wrapf(ErrTrailingBytes, "%s: %d bytes", e.action, n)}
	}
	return m, nil
}

// Package brevent implements the loopback protocol spoken between the brevent
// background service and its clients: typed, versioned messages carried as
// gzip-compressed records behind a 2-byte length prefix, plus a liveness probe
// that checks whether the service is listening.
package brevent

import (
	"fmt"
	"io"
	"reflect"
)

// Version is the protocol version compiled into this build.
// Every outgoing message carries it and every decoded message is compared against it.
const Version int32 = 1

// Port is the fixed loopback port the service listens on,
// derived from md5 of the application id.
const Port = 59526

// Action tags a message kind on the wire. Values are stable and must not be renumbered.
type Action int32

const (
	ActionStatusRequest Action = iota
	ActionStatusResponse
	ActionUpdateBrevent
	ActionConfiguration
	ActionUpdatePriority
	ActionStatusNoEvent
	ActionShowRoot
)

// String returns the action name used in logs and metric labels.
func (a Action) String() string {
	switch a {
	case ActionStatusRequest:
		return "request"
	case ActionStatusResponse:
		return "response"
	case ActionUpdateBrevent:
		return "brevent"
	case ActionConfiguration:
		return "configuration"
	case ActionUpdatePriority:
		return "priority"
	case ActionStatusNoEvent:
		return "no_event"
	case ActionShowRoot:
		return "show_root"
	default:
		return fmt.Sprintf("(unknown: %d)", int32(a))
	}
}

// Message is one of the closed set of protocol messages.
// The unexported envelope accessor keeps implementations inside this package.
type Message interface {
	// Action returns the tag identifying the message kind.
	Action() Action
	// Version returns the protocol version the message was encoded with.
	Version() int32
	// VersionMismatched reports whether the message came from a different protocol version.
	// A mismatched message is still structurally valid.
	VersionMismatched() bool
	// MarshalRecord writes the variant fields that follow the envelope.
	MarshalRecord(w *RecordWriter)

	header() envelope
}

// isNilMessage reports whether m is nil or a nil pointer to a variant.
func isNilMessage(m Message) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// envelope is the version and action prefix shared by every record.
type envelope struct {
	version int32
	action  Action
}

func newEnvelope(action Action) envelope {
	return envelope{version: Version, action: action}
}

// Action returns the tag carried in the envelope.
func (e envelope) Action() Action { return e.action }

// Version returns the protocol version the message was encoded with.
func (e envelope) Version() int32 { return e.version }

// VersionMismatched reports whether Version differs from this build's Version.
func (e envelope) VersionMismatched() bool { return e.version != Version }

func (e envelope) header() envelope { return e }

// String formats the envelope as "version: V, action: NAME".
func (e envelope) String() string {
	return fmt.Sprintf("version: %d, action: %s", e.version, e.action)
}

func (e envelope) marshal(w *RecordWriter) {
	w.WriteInt32(e.version)
	w.WriteInt32(int32(e.action))
}

func unmarshalEnvelope(r *RecordReader) envelope {
	version := r.ReadInt32()
	action := Action(r.ReadInt32())
	return envelope{version: version, action: action}
}

// Codec is the interface for message encoding and decoding.
//
// Decode reads from an io.Reader so the codec controls exactly how many bytes
// of the stream belong to one frame, which handles TCP fragmentation.
type Codec interface {
	// Decode reads and decodes one complete frame from the reader.
	// An empty frame or an unknown action decodes to a nil Message and a nil error.
	Decode(r io.Reader) (Message, error)
	// Encode encodes a Message into one complete frame. A nil Message encodes as the empty frame.
	Encode(Message) ([]byte, error)
}

package brevent

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

// sampleMessages returns one populated instance of every variant.
func sampleMessages() []Message {
	token := uuid.MustParse("6f1c2a9e-3b1d-4c55-9a0e-2f7d1b8c4e61")

	resp := NewStatusResponse(token)
	resp.Brevent = []string{"com.example.chat", "com.example.maps"}
	resp.Priority = []string{"com.example.music"}
	resp.Processes = map[string]int32{"com.example.chat": 2, "com.example.maps": -1}
	resp.DaemonTime = 1500000000000
	resp.ServerTime = 1500000123456
	resp.Supported = true
	resp.Root = true

	cfg := NewConfiguration()
	cfg.BackStop = true
	cfg.BackTimeout = 1800
	cfg.StandbyTimeout = 3600
	cfg.Method = 2
	cfg.AllowRoot = true

	req := NewStatusRequest()
	req.Token = token

	return []Message{
		req,
		resp,
		NewUpdateBrevent(true, "com.example.chat", "com.example.mail"),
		cfg,
		NewUpdatePriority(false, "com.example.music"),
		NewStatusNoEvent(token),
		NewShowRoot(),
	}
}

func TestUnmarshalRecord_RoundTrip(t *testing.T) {
	for _, m := range sampleMessages() {
		t.Run(m.Action().String(), func(t *testing.T) {
			got, err := UnmarshalRecord(MarshalRecord(m))
			if err != nil {
				t.Fatalf("UnmarshalRecord failed: %v", err)
			}
			if !reflect.DeepEqual(got, m) {
				t.Errorf("round trip mismatch:\n got  %#v\n want %#v", got, m)
			}
			if got.VersionMismatched() {
				t.Error("VersionMismatched = true, want false")
			}
		})
	}
}

func TestUnmarshalRecord_EmptyFields(t *testing.T) {
	resp := NewStatusResponse(uuid.Nil)

	got, err := UnmarshalRecord(MarshalRecord(resp))
	if err != nil {
		t.Fatalf("UnmarshalRecord failed: %v", err)
	}
	if !reflect.DeepEqual(got, resp) {
		t.Errorf("got %#v, want %#v", got, resp)
	}
}

func TestMarshalRecord_EnvelopeLayout(t *testing.T) {
	record := MarshalRecord(NewShowRoot())

	want := []byte{0, 0, 0, byte(Version), 0, 0, 0, byte(ActionShowRoot)}
	if !reflect.DeepEqual(record, want) {
		t.Errorf("record = %v, want %v", record, want)
	}
}

func TestUnmarshalRecord_UnknownAction(t *testing.T) {
	var w RecordWriter
	w.WriteInt32(Version)
	w.WriteInt32(99)
	w.WriteString("payload from a newer peer")

	m, err := UnmarshalRecord(w.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("got %v, want nil", m)
	}
}

func TestUnmarshalRecord_VersionMismatch(t *testing.T) {
	var w RecordWriter
	w.WriteInt32(Version + 1)
	w.WriteInt32(int32(ActionUpdateBrevent))
	w.WriteBool(true)
	w.WriteStrings([]string{"com.example.chat"})

	m, err := UnmarshalRecord(w.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.VersionMismatched() {
		t.Error("VersionMismatched = false, want true")
	}
	if m.Version() != Version+1 {
		t.Errorf("Version = %d, want %d", m.Version(), Version+1)
	}

	update, ok := m.(*UpdateBrevent)
	if !ok {
		t.Fatalf("got %T, want *UpdateBrevent", m)
	}
	if !update.Brevent || len(update.Packages) != 1 {
		t.Errorf("payload not decoded: %+v", update)
	}
}

func TestUnmarshalRecord_ShortEnvelope(t *testing.T) {
	_, err := UnmarshalRecord([]byte{0, 0, 0, 1, 0})
	if !errors.Is(err, ErrCorruptFrame) {
		t.Errorf("expected ErrCorruptFrame, got %v", err)
	}
	if !errors.Is(err, ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
}

func TestUnmarshalRecord_ShortPayload(t *testing.T) {
	record := MarshalRecord(NewUpdatePriority(true, "com.example.music"))

	_, err := UnmarshalRecord(record[:len(record)-3])
	if !errors.Is(err, ErrCorruptFrame) {
		t.Errorf("expected ErrCorruptFrame, got %v", err)
	}
	if !errors.Is(err, ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
}

func TestUnmarshalRecord_TrailingBytes(t *testing.T) {
	record := MarshalRecord(NewShowRoot())
	record = append(record, 0xde, 0xad)

	m, err := UnmarshalRecord(record)
	if m != nil {
		t.Errorf("got %v, want nil", m)
	}
	if !errors.Is(err, ErrCorruptFrame) {
		t.Errorf("expected ErrCorruptFrame, got %v", err)
	}
	if !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("expected ErrTrailingBytes, got %v", err)
	}

	var corrupt *CorruptFrameError
	if !errors.As(err, &corrupt) {
		t.Errorf("expected *CorruptFrameError, got %T", err)
	}
}

package brevent

import (
	"github.com/google/uuid"
)

// StatusRequest asks the service for its current state.
// The service answers with a StatusResponse or StatusNoEvent carrying the same Token.
type StatusRequest struct {
	envelope
	Token uuid.UUID
}

// NewStatusRequest returns a request with a fresh random token.
func NewStatusRequest() *StatusRequest {
	return &StatusRequest{envelope: newEnvelope(ActionStatusRequest), Token: uuid.New()}
}

// MarshalRecord writes the 16-byte token.
func (m *StatusRequest) MarshalRecord(w *RecordWriter) {
	writeToken(w, m.Token)
}

func unmarshalStatusRequest(e envelope, r *RecordReader) *StatusRequest {
	return &StatusRequest{envelope: e, Token: readToken(r)}
}

// StatusResponse reports the service state.
type StatusResponse struct {
	envelope
	Token uuid.UUID
	// Brevent lists the packages under brevent control.
	Brevent []string
	// Priority lists the packages allowed to run in the background.
	Priority []string
	// Processes maps package name to its current process state.
	Processes  map[string]int32
	DaemonTime int64
	ServerTime int64
	Supported  bool
	Root       bool
}

// NewStatusResponse returns an empty response answering the request with token.
func NewStatusResponse(token uuid.UUID) *StatusResponse {
	return &StatusResponse{envelope: newEnvelope(ActionStatusResponse), Token: token}
}

// MarshalRecord writes the token, both package lists, the process map,
// both timestamps and the two flags, in that order.
func (m *StatusResponse) MarshalRecord(w *RecordWriter) {
	writeToken(w, m.Token)
	w.WriteStrings(m.Brevent)
	w.WriteStrings(m.Priority)
	w.WriteStringInt32Map(m.Processes)
	w.WriteInt64(m.DaemonTime)
	w.WriteInt64(m.ServerTime)
	w.WriteBool(m.Supported)
	w.WriteBool(m.Root)
}

func unmarshalStatusResponse(e envelope, r *RecordReader) *StatusResponse {
	m := &StatusResponse{envelope: e}
	m.Token = readToken(r)
	m.Brevent = r.ReadStrings()
	m.Priority = r.ReadStrings()
	m.Processes = r.ReadStringInt32Map()
	m.DaemonTime = r.ReadInt64()
	m.ServerTime = r.ReadInt64()
	m.Supported = r.ReadBool()
	m.Root = r.ReadBool()
	return m
}

// UpdateBrevent adds packages to (Brevent true) or removes them from the brevent list.
type UpdateBrevent struct {
	envelope
	Brevent  bool
	Packages []string
}

// NewUpdateBrevent adds packages to the brevent list, or removes them when brevent is false.
func NewUpdateBrevent(brevent bool, packages ...string) *UpdateBrevent {
	return &UpdateBrevent{envelope: newEnvelope(ActionUpdateBrevent), Brevent: brevent, Packages: packages}
}

// MarshalRecord writes the flag followed by the package list.
func (m *UpdateBrevent) MarshalRecord(w *RecordWriter) {
	w.WriteBool(m.Brevent)
	w.WriteStrings(m.Packages)
}

func unmarshalUpdateBrevent(e envelope, r *RecordReader) *UpdateBrevent {
	m := &UpdateBrevent{envelope: e}
	m.Brevent = r.ReadBool()
	m.Packages = r.ReadStrings()
	return m
}

// Configuration carries the service settings.
type Configuration struct {
	envelope
	BackStop       bool
	BackTimeout    int32
	StandbyTimeout int32
	Method         int32
	AbnormalBack   bool
	AllowRoot      bool
}

// NewConfiguration returns a configuration with every setting zeroed.
func NewConfiguration() *Configuration {
	return &Configuration{envelope: newEnvelope(ActionConfiguration)}
}

// MarshalRecord writes the settings in field order.
func (m *Configuration) MarshalRecord(w *RecordWriter) {
	w.WriteBool(m.BackStop)
	w.WriteInt32(m.BackTimeout)
	w.WriteInt32(m.StandbyTimeout)
	w.WriteInt32(m.Method)
	w.WriteBool(m.AbnormalBack)
	w.WriteBool(m.AllowRoot)
}

func unmarshalConfiguration(e envelope, r *RecordReader) *Configuration {
	m := &Configuration{envelope: e}
	m.BackStop = r.ReadBool()
	m.BackTimeout = r.ReadInt32()
	m.StandbyTimeout = r.ReadInt32()
	m.Method = r.ReadInt32()
	m.AbnormalBack = r.ReadBool()
	m.AllowRoot = r.ReadBool()
	return m
}

// UpdatePriority adds packages to (Priority true) or removes them from the priority list.
type UpdatePriority struct {
	envelope
	Priority bool
	Packages []string
}

// NewUpdatePriority adds packages to the priority list, or removes them when priority is false.
func NewUpdatePriority(priority bool, packages ...string) *UpdatePriority {
	return &UpdatePriority{envelope: newEnvelope(ActionUpdatePriority), Priority: priority, Packages: packages}
}

// MarshalRecord writes the flag followed by the package list.
func (m *UpdatePriority) MarshalRecord(w *RecordWriter) {
	w.WriteBool(m.Priority)
	w.WriteStrings(m.Packages)
}

func unmarshalUpdatePriority(e envelope, r *RecordReader) *UpdatePriority {
	m := &UpdatePriority{envelope: e}
	m.Priority = r.ReadBool()
	m.Packages = r.ReadStrings()
	return m
}

// StatusNoEvent tells the requester that nothing changed since its last request.
type StatusNoEvent struct {
	envelope
	Token uuid.UUID
}

// NewStatusNoEvent answers the request with token when nothing changed.
func NewStatusNoEvent(token uuid.UUID) *StatusNoEvent {
	return &StatusNoEvent{envelope: newEnvelope(ActionStatusNoEvent), Token: token}
}

// MarshalRecord writes the 16-byte token.
func (m *StatusNoEvent) MarshalRecord(w *RecordWriter) {
	writeToken(w, m.Token)
}

func unmarshalStatusNoEvent(e envelope, r *RecordReader) *StatusNoEvent {
	return &StatusNoEvent{envelope: e, Token: readToken(r)}
}

// ShowRoot asks the client to surface the root mode notice. It has no payload.
type ShowRoot struct {
	envelope
}

// NewShowRoot returns a show-root notification.
func NewShowRoot() *ShowRoot {
	return &ShowRoot{envelope: newEnvelope(ActionShowRoot)}
}

// MarshalRecord writes nothing; the envelope is the whole record.
func (m *ShowRoot) MarshalRecord(*RecordWriter) {}

func writeToken(w *RecordWriter, token uuid.UUID) {
	w.WriteRaw(token[:])
}

func readToken(r *RecordReader) uuid.UUID {
	var token uuid.UUID
	copy(token[:], r.ReadRaw(len(token)))
	return token
}

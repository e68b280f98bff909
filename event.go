package durable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// EventType discriminates the variants of DurableEvent described in the
// event model (spec §3).
type EventType string

const (
	EventEffectYielded  EventType = "effect:yielded"
	EventEffectResolved EventType = "effect:resolved"
	EventEffectErrored  EventType = "effect:errored"
	EventScopeCreated   EventType = "scope:created"
	EventScopeDestroyed EventType = "scope:destroyed"
	EventScopeSet       EventType = "scope:set"
	EventScopeDelete    EventType = "scope:delete"
	EventWorkflowReturn EventType = "workflow:return"
)

// RootScopeID is the reserved identifier of the durable invocation's root
// scope. It has no parent and is never the subject of a scope:created event.
const RootScopeID = "root"

// ScopeResult is the outcome recorded on a scope:destroyed event.
type ScopeResult struct {
	OK    bool             `json:"ok"`
	Error *SerializedError `json:"error,omitempty"`
}

// SerializedError is the normalized, JSON-safe form of an error or panic
// value. Message is always a string even when the original throwable was not
// an error (a Go panic with a string, number, or arbitrary value).
type SerializedError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *SerializedError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// DurableEvent is the tagged union persisted to a DurableStream. Only the
// fields relevant to Type are populated; the rest are left at their zero
// value and omitted from the JSON wire form.
type DurableEvent struct {
	Type EventType `json:"type"`

	ScopeID       string `json:"scopeId,omitempty"`
	ParentScopeID string `json:"parentScopeId,omitempty"`

	EffectID    string `json:"effectId,omitempty"`
	Description string `json:"description,omitempty"`

	ContextName string `json:"contextName,omitempty"`

	Value json.RawMessage `json:"value,omitempty"`

	Error *SerializedError `json:"error,omitempty"`

	Result *ScopeResult `json:"result,omitempty"`
}

// StreamEntry pairs an event with the offset it was appended at.
type StreamEntry struct {
	Offset int          `json:"offset"`
	Event  DurableEvent `json:"event"`
}

// LiveOnlySentinel marks a value that could not be recorded verbatim because
// it is not JSON-serializable (a live handle, an iterable, an abort signal,
// a function). On replay, consumers must obtain a fresh live value of the
// same semantic kind rather than reconstructing this one from the log.
type LiveOnlySentinel struct {
	LiveOnly bool   `json:"__liveOnly"`
	Type     string `json:"__type"`
	ToString string `json:"__toString"`
}

// liveOnlyTyper is implemented by host values (scopes, abort signals,
// channels) that are inherently non-serializable regardless of whether
// json.Marshal would happen to succeed on their exported fields.
type liveOnlyTyper interface {
	LiveOnlyType() string
}

// CreateLiveOnlySentinel builds the sentinel recorded in place of value.
func CreateLiveOnlySentinel(value any) *LiveOnlySentinel {
	typeName := "unknown"
	switch v := value.(type) {
	case nil:
		typeName = "nil"
	case liveOnlyTyper:
		typeName = v.LiveOnlyType()
	default:
		t := reflect.TypeOf(value)
		if t != nil {
			typeName = t.String()
		}
	}
	return &LiveOnlySentinel{
		LiveOnly: true,
		Type:     typeName,
		ToString: stringify(value),
	}
}

func stringify(value any) string {
	if s, ok := value.(fmt.Stringer); ok {
		return s.String()
	}
	if err, ok := value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", value)
}

// IsLiveOnly reports whether a decoded JSON value is a live-only sentinel.
func IsLiveOnly(value any) bool {
	switch v := value.(type) {
	case *LiveOnlySentinel:
		return v != nil && v.LiveOnly
	case map[string]any:
		liveOnly, _ := v["__liveOnly"].(bool)
		return liveOnly
	default:
		return false
	}
}

// isInherentlyLiveOnly reports whether value must be replaced by a sentinel
// regardless of whether json.Marshal would succeed on it — functions,
// channels, contexts and anything implementing liveOnlyTyper.
func isInherentlyLiveOnly(value any) bool {
	if value == nil {
		return false
	}
	if _, ok := value.(liveOnlyTyper); ok {
		return true
	}
	if _, ok := value.(context.Context); ok {
		return true
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

// ToJSONValue serializes value for recording. When value is JSON-safe, the
// raw encoding is returned with isLiveOnly=false. Otherwise a
// LiveOnlySentinel is recorded instead and isLiveOnly is true.
//
// Encoding goes through a pooled *bytes.Buffer (PoolManager.AcquireBuffer/
// ReleaseBuffer) rather than json.Marshal directly, since every effect
// resolution and every scope:set on the hot path allocates one of these
// otherwise.
func ToJSONValue(value any) (raw json.RawMessage, isLiveOnly bool) {
	if value == nil {
		return json.RawMessage("null"), false
	}
	if isInherentlyLiveOnly(value) {
		return mustMarshalSentinel(value), true
	}
	encoded, err := marshalBuffered(value)
	if err != nil {
		return mustMarshalSentinel(value), true
	}
	return encoded, false
}

// marshalBuffered encodes value through a pooled buffer, trimming the
// trailing newline json.Encoder always writes, and copies the result
// out before the buffer is returned to the pool.
func marshalBuffered(value any) (json.RawMessage, error) {
	buf := globalPoolManager.AcquireBuffer()
	defer globalPoolManager.ReleaseBuffer(buf)
	if err := json.NewEncoder(buf).Encode(value); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimRight(buf.Bytes(), "\n")
	out := make(json.RawMessage, len(trimmed))
	copy(out, trimmed)
	return out, nil
}

func mustMarshalSentinel(value any) json.RawMessage {
	encoded, err := marshalBuffered(CreateLiveOnlySentinel(value))
	if err != nil {
		// CreateLiveOnlySentinel always produces a plain struct of scalars;
		// this can only fail if json itself is broken.
		return json.RawMessage(`{"__liveOnly":true,"__type":"unknown","__toString":""}`)
	}
	return encoded
}

// FromJSONValue decodes a recorded value back into an any, or a
// *LiveOnlySentinel when the recorded form is a sentinel.
func FromJSONValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	probe := globalPoolManager.AcquireProbeMap()
	defer globalPoolManager.ReleaseProbeMap(probe)
	if err := json.Unmarshal(raw, &probe); err == nil {
		if liveOnlyRaw, ok := probe["__liveOnly"]; ok {
			var flag bool
			if jerr := json.Unmarshal(liveOnlyRaw, &flag); jerr == nil && flag {
				var sentinel LiveOnlySentinel
				if err := json.Unmarshal(raw, &sentinel); err != nil {
					return nil, err
				}
				return &sentinel, nil
			}
		}
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// NormalizeError normalizes an error returned by an effect body into the
// wire form recorded on an effect:errored or scope:destroyed event.
func NormalizeError(err error) *SerializedError {
	if err == nil {
		return nil
	}
	if _, ok := err.(*HaltError); ok {
		return &SerializedError{Name: "HaltError", Message: err.Error()}
	}
	name := "Error"
	if t := reflect.TypeOf(err); t != nil {
		name = t.String()
	}
	return &SerializedError{
		Name:    name,
		Message: err.Error(),
	}
}

// NormalizeRecovered normalizes a recover()'d panic value, which may not be
// an error at all (Go permits panic(anyValue)). The recorded message is
// always a string.
func NormalizeRecovered(recovered any, stack []byte) *SerializedError {
	if err, ok := recovered.(error); ok {
		se := NormalizeError(err)
		se.Stack = string(stack)
		return se
	}
	return &SerializedError{
		Name:    "PanicValue",
		Message: fmt.Sprintf("%v", recovered),
		Stack:   string(stack),
	}
}

// DeserializeError turns a recorded SerializedError back into a Go error
// for re-throwing at the same replay point.
func DeserializeError(se *SerializedError) error {
	if se == nil {
		return nil
	}
	return se
}

package durable

import (
	"context"
	"testing"
)

func TestToJSONValueRoundTrip(t *testing.T) {
	raw, liveOnly := ToJSONValue(map[string]any{"a": 1.0})
	if liveOnly {
		t.Fatalf("expected JSON-safe value, got live-only")
	}
	decoded, err := FromJSONValue(raw)
	if err != nil {
		t.Fatalf("FromJSONValue: %v", err)
	}
	m, ok := decoded.(map[string]any)
	if !ok || m["a"] != 1.0 {
		t.Fatalf("round trip mismatch: %#v", decoded)
	}
}

func TestToJSONValueLiveOnlyForContext(t *testing.T) {
	raw, liveOnly := ToJSONValue(context.Background())
	if !liveOnly {
		t.Fatalf("expected context.Context to be live-only")
	}
	decoded, err := FromJSONValue(raw)
	if err != nil {
		t.Fatalf("FromJSONValue: %v", err)
	}
	if !IsLiveOnly(decoded) {
		t.Fatalf("expected decoded sentinel to report IsLiveOnly, got %#v", decoded)
	}
}

func TestToJSONValueLiveOnlyForFunc(t *testing.T) {
	_, liveOnly := ToJSONValue(func() {})
	if !liveOnly {
		t.Fatalf("expected func value to be live-only")
	}
}

func TestNormalizeErrorAndDeserialize(t *testing.T) {
	original := &EffectError{EffectID: "effect-0", Description: "do-thing", Cause: context.DeadlineExceeded}
	se := NormalizeError(original)
	if se.Message != original.Error() {
		t.Fatalf("message mismatch: %q vs %q", se.Message, original.Error())
	}
	restored := DeserializeError(se)
	if restored.Error() != se.Message {
		t.Fatalf("deserialize mismatch: %q", restored.Error())
	}
}

func TestNormalizeRecoveredNonError(t *testing.T) {
	se := NormalizeRecovered("boom", []byte("stack"))
	if se.Name != "PanicValue" || se.Message != "boom" {
		t.Fatalf("unexpected normalization: %#v", se)
	}
}

package durable

import "testing"

func TestNewIDAllocatorSeedsPastExistingIDs(t *testing.T) {
	entries := []StreamEntry{
		{Offset: 0, Event: DurableEvent{Type: EventEffectYielded, EffectID: "effect-0"}},
		{Offset: 1, Event: DurableEvent{Type: EventEffectYielded, EffectID: "effect-3"}},
		{Offset: 2, Event: DurableEvent{Type: EventScopeCreated, ScopeID: "scope-0", ParentScopeID: RootScopeID}},
		{Offset: 3, Event: DurableEvent{Type: EventScopeCreated, ScopeID: RootScopeID, ParentScopeID: ""}},
	}
	ids := newIDAllocator(entries)

	if got := ids.NextEffectID(); got != "effect-4" {
		t.Fatalf("expected effect-4, got %s", got)
	}
	if got := ids.NextScopeID(); got != "scope-1" {
		t.Fatalf("expected scope-1, got %s", got)
	}
}

func TestNewIDAllocatorEmptyStream(t *testing.T) {
	ids := newIDAllocator(nil)
	if got := ids.NextEffectID(); got != "effect-0" {
		t.Fatalf("expected effect-0, got %s", got)
	}
	if got := ids.NextScopeID(); got != "scope-0" {
		t.Fatalf("expected scope-0, got %s", got)
	}
}

func TestIDAllocatorNeverRepeats(t *testing.T) {
	ids := newIDAllocator(nil)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := ids.NextEffectID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

package durable

import (
	"context"
	"errors"
	"testing"

	"github.com/durable-go/durable/host"
)

func rootScopeIDOf(*host.Ctx) string { return RootScopeID }

// capturedRootCtx returns a *host.Ctx pulled out of a completed root
// scope. Its goCtx is cancelled by the time the caller gets it back, but
// none of the Reduction.Run stubs in this file consult their context
// argument, so it is safe to reuse outside the scope that produced it.
func capturedRootCtx() *host.Ctx {
	rt := host.NewRuntime()
	var captured *host.Ctx
	host.Root(context.Background(), rt, func(c *host.Ctx) (any, error) {
		captured = c
		return nil, nil
	})
	return captured
}

func TestReducerRunFreshRecordsYieldedAndResolved(t *testing.T) {
	stream := NewInMemoryDurableStream()
	ids := newIDAllocator(nil)
	red := newReducer(stream, ids, nil, rootScopeIDOf)
	ctx := capturedRootCtx()

	value, err := red.Reduce(ctx, host.Reduction{
		Description: "step-one",
		Run:         func(context.Context) (any, error) { return "result", nil },
	}, nil)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if value != "result" {
		t.Fatalf("unexpected value: %v", value)
	}

	entries, _ := stream.Read(0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Event.Type != EventEffectYielded || entries[0].Event.Description != "step-one" {
		t.Fatalf("unexpected first entry: %#v", entries[0].Event)
	}
	if entries[1].Event.Type != EventEffectResolved {
		t.Fatalf("unexpected second entry: %#v", entries[1].Event)
	}
}

func TestReducerRunFreshRecordsError(t *testing.T) {
	stream := NewInMemoryDurableStream()
	ids := newIDAllocator(nil)
	red := newReducer(stream, ids, nil, rootScopeIDOf)
	ctx := capturedRootCtx()

	wantErr := errors.New("boom")
	_, err := red.Reduce(ctx, host.Reduction{
		Description: "step-one",
		Run:         func(context.Context) (any, error) { return nil, wantErr },
	}, nil)
	if err == nil || err.Error() != wantErr.Error() {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}

	entries, _ := stream.Read(0)
	if len(entries) != 2 || entries[1].Event.Type != EventEffectErrored {
		t.Fatalf("expected effect:errored as second entry, got %#v", entries)
	}
}

func TestReducerReplaysRecordedCompletion(t *testing.T) {
	stream := InMemoryDurableStreamFrom([]DurableEvent{
		{Type: EventEffectYielded, ScopeID: RootScopeID, EffectID: "effect-0", Description: "step-one"},
		{Type: EventEffectResolved, EffectID: "effect-0", Value: []byte(`"cached"`)},
	}, false)
	ids := newIDAllocator(nil)
	entries, _ := stream.Read(0)
	red := newReducer(stream, ids, entries, rootScopeIDOf)
	ctx := capturedRootCtx()

	calls := 0
	value, err := red.Reduce(ctx, host.Reduction{
		Description: "step-one",
		Run: func(context.Context) (any, error) {
			calls++
			return "fresh", nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if value != "cached" {
		t.Fatalf("expected cached value, got %v", value)
	}
	if calls != 0 {
		t.Fatalf("expected effect body not to run on replay, got %d calls", calls)
	}
	if stream.Length() != 2 {
		t.Fatalf("expected stream length unchanged, got %d", stream.Length())
	}
}

func TestReducerReplaysRecordedError(t *testing.T) {
	recordedErr := NormalizeError(errors.New("original failure"))
	stream := InMemoryDurableStreamFrom([]DurableEvent{
		{Type: EventEffectYielded, ScopeID: RootScopeID, EffectID: "effect-0", Description: "step-one"},
		{Type: EventEffectErrored, EffectID: "effect-0", Error: recordedErr},
	}, false)
	ids := newIDAllocator(nil)
	entries, _ := stream.Read(0)
	red := newReducer(stream, ids, entries, rootScopeIDOf)
	ctx := capturedRootCtx()

	_, err := red.Reduce(ctx, host.Reduction{
		Description: "step-one",
		Run:         func(context.Context) (any, error) { return "should-not-run", nil },
	}, nil)
	if err == nil || err.Error() != "original failure" {
		t.Fatalf("expected deserialized original error, got %v", err)
	}
}

func TestReducerFallsIntoLiveModeAfterQueueExhausted(t *testing.T) {
	stream := InMemoryDurableStreamFrom([]DurableEvent{
		{Type: EventEffectYielded, ScopeID: RootScopeID, EffectID: "effect-0", Description: "step-one"},
		{Type: EventEffectResolved, EffectID: "effect-0", Value: []byte(`"cached"`)},
	}, false)
	ids := newIDAllocator(nil)
	entries, _ := stream.Read(0)
	red := newReducer(stream, ids, entries, rootScopeIDOf)
	ctx := capturedRootCtx()

	if _, err := red.Reduce(ctx, host.Reduction{
		Description: "step-one",
		Run:         func(context.Context) (any, error) { return "fresh", nil },
	}, nil); err != nil {
		t.Fatalf("Reduce (replay): %v", err)
	}

	calls := 0
	value, err := red.Reduce(ctx, host.Reduction{
		Description: "step-two",
		Run: func(context.Context) (any, error) {
			calls++
			return "live-result", nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("Reduce (live): %v", err)
	}
	if calls != 1 || value != "live-result" {
		t.Fatalf("expected fresh effect to run live, calls=%d value=%v", calls, value)
	}
}

package durable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/durable-go/durable/host"
)

// interruptedBy reports whether err is the cancellation of ctx's own
// scope rather than a business error the effect or workflow body
// returned on its own account. It is the line between "this outcome is
// a real result, record it" and "this scope was torn down from
// outside, leave it unrecorded so the next invocation resumes it".
func interruptedBy(ctx *host.Ctx, err error) bool {
	cerr := ctx.Context().Err()
	return err != nil && cerr != nil && errors.Is(err, cerr)
}

// reducer is the host.EffectMiddleware that gives durable invocations
// their replay semantics. It is grounded on the teacher's
// Extension.Wrap chaining (extension.go) generalized from "observe a
// resolution" to "record or replay one": constructed once per
// invocation from a snapshot of the stream, it holds a single global
// FIFO of effect:yielded records (effects are paired by id, not by
// scope, so one queue suffices) plus an index of their completions.
// Once that queue is exhausted every subsequent effect is fresh and
// the reducer falls permanently into live mode.
type reducer struct {
	mu          sync.Mutex
	stream      DurableStream
	ids         *idAllocator
	scopeIDOf   func(*host.Ctx) string
	yieldQueue  []StreamEntry
	completions map[string]StreamEntry
	live        bool
}

func newReducer(stream DurableStream, ids *idAllocator, entries []StreamEntry, scopeIDOf func(*host.Ctx) string) *reducer {
	r := &reducer{
		stream:      stream,
		ids:         ids,
		scopeIDOf:   scopeIDOf,
		completions: make(map[string]StreamEntry),
	}
	for _, entry := range entries {
		switch entry.Event.Type {
		case EventEffectYielded:
			r.yieldQueue = append(r.yieldQueue, entry)
		case EventEffectResolved, EventEffectErrored:
			r.completions[entry.Event.EffectID] = entry
		}
	}
	r.live = len(r.yieldQueue) == 0
	return r
}

// Reduce implements host.EffectMiddleware.
func (red *reducer) Reduce(ctx *host.Ctx, r host.Reduction, next func() (any, error)) (any, error) {
	if next != nil {
		// Effect bodies run through the rest of the chain, so middleware
		// chained after the reducer sees every effect it runs.
		r.Run = func(context.Context) (any, error) { return next() }
	}
	red.mu.Lock()

	if red.live {
		red.mu.Unlock()
		return red.runFresh(ctx, r)
	}

	if len(red.yieldQueue) == 0 {
		red.live = true
		red.mu.Unlock()
		return red.runFresh(ctx, r)
	}

	entry := red.yieldQueue[0]
	red.yieldQueue = red.yieldQueue[1:]
	if len(red.yieldQueue) == 0 {
		red.live = true
	}

	if entry.Event.Description != r.Description {
		offset := entry.Offset
		red.mu.Unlock()
		return nil, newDivergenceError(entry.Event.Description, r.Description, offset)
	}

	effectID := entry.Event.EffectID
	completion, hasCompletion := red.completions[effectID]
	delete(red.completions, effectID)
	red.mu.Unlock()

	if !hasCompletion {
		return red.healBoundary(ctx, effectID, r)
	}

	switch completion.Event.Type {
	case EventEffectResolved:
		value, err := FromJSONValue(completion.Event.Value)
		if err != nil {
			return nil, err
		}
		if IsLiveOnly(value) {
			// The recorded value could only ever be a sentinel; the
			// real, live-only handle has to be minted again. The pair
			// is still considered consumed: nothing new is recorded.
			return r.Run(ctx.Context())
		}
		return value, nil
	case EventEffectErrored:
		return nil, DeserializeError(completion.Event.Error)
	default:
		return nil, fmt.Errorf("durable: effect %s has unexpected completion type %q", effectID, completion.Event.Type)
	}
}

// runFresh records a brand-new effect:yielded/resolved (or errored)
// pair for an effect with no recorded counterpart at all.
func (red *reducer) runFresh(ctx *host.Ctx, r host.Reduction) (any, error) {
	effectID := red.ids.NextEffectID()
	scopeID := red.scopeIDOf(ctx)
	red.stream.Append(DurableEvent{
		Type:        EventEffectYielded,
		ScopeID:     scopeID,
		EffectID:    effectID,
		Description: r.Description,
	})
	return red.runAndRecordCompletion(ctx, effectID, scopeID, r)
}

// healBoundary completes an effect whose effect:yielded was recorded
// (by a prior, truncated invocation) but whose completion never was.
// It reuses the existing effect id and does not re-append the yielded
// entry.
func (red *reducer) healBoundary(ctx *host.Ctx, effectID string, r host.Reduction) (any, error) {
	return red.runAndRecordCompletion(ctx, effectID, "", r)
}

func (red *reducer) runAndRecordCompletion(ctx *host.Ctx, effectID, scopeID string, r host.Reduction) (any, error) {
	value, err := r.Run(ctx.Context())
	if err != nil {
		if interruptedBy(ctx, err) {
			// The scope running this effect was cancelled out from under
			// it (a Halt, a parent scope tearing down, the invocation's
			// own context being cancelled) rather than the effect itself
			// genuinely failing. Leave the effect:yielded unpaired so the
			// next invocation heals this boundary by re-running the
			// effect, instead of replaying a stale cancellation forever.
			return nil, err
		}
		red.stream.Append(DurableEvent{
			Type:     EventEffectErrored,
			ScopeID:  scopeID,
			EffectID: effectID,
			Error:    NormalizeError(err),
		})
		return nil, err
	}
	raw, _ := ToJSONValue(value)
	red.stream.Append(DurableEvent{
		Type:     EventEffectResolved,
		ScopeID:  scopeID,
		EffectID: effectID,
		Value:    raw,
	})
	return value, nil
}

package durable

import (
	"sync"

	"github.com/durable-go/durable/host"
)

// scopeBinding records, for one live *host.Ctx, the durable scope id
// it has been bound to and whether that binding came from matching an
// existing scope:created record (replaying) or from minting a fresh
// id because no more recorded children remain (live).
type scopeBinding struct {
	id        string
	parentID  string
	replaying bool
}

// scopeTracker is the host.ScopeMiddleware that binds live scopes to
// recorded ones and records the lifecycle of scopes that have no
// recorded counterpart. It is grounded on the teacher's cleanup
// registry and reactive-dependency bookkeeping in scope.go, generalized
// from "track one resolved value per executor" to "track one durable
// identity per live scope".
//
// Binding uses a FIFO queue per parent scope id: the spec's scope
// matching is positional among siblings sharing the same parent, so
// the n-th child spawned live under a given parent binds to the n-th
// scope:created recorded under that same parent, regardless of what
// else has happened elsewhere in the stream.
type scopeTracker struct {
	mu       sync.Mutex
	stream   DurableStream
	ids      *idAllocator
	bindings map[*host.Ctx]*scopeBinding
	pending  map[string][]StreamEntry
	tree     *scopeTree

	rootAlreadyFinished bool
}

func newScopeTracker(stream DurableStream, ids *idAllocator, entries []StreamEntry) *scopeTracker {
	t := &scopeTracker{
		stream:   stream,
		ids:      ids,
		bindings: make(map[*host.Ctx]*scopeBinding),
		pending:  make(map[string][]StreamEntry),
		tree:     newScopeTree(),
	}
	for _, entry := range entries {
		switch entry.Event.Type {
		case EventScopeCreated:
			parent := entry.Event.ParentScopeID
			t.pending[parent] = append(t.pending[parent], entry)
		case EventScopeDestroyed, EventWorkflowReturn:
			if entry.Event.ScopeID == RootScopeID {
				t.rootAlreadyFinished = true
			}
		}
	}
	return t
}

// ScopeID returns the durable scope id bound to ctx, or "" if ctx has
// not been observed by OnScopeCreate (should not happen for any ctx
// reachable from a Runtime this tracker is installed on).
func (t *scopeTracker) ScopeID(ctx *host.Ctx) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[ctx]
	if !ok {
		return ""
	}
	return b.id
}

// IsReplaying reports whether ctx was bound to a previously recorded
// scope (and therefore must not re-record its own lifecycle).
func (t *scopeTracker) IsReplaying(ctx *host.Ctx) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[ctx]
	return ok && b.replaying
}

// Tree exposes the live parent/child scope relationships, for
// introspection (extensions/scopetree) rather than replay itself.
func (t *scopeTracker) Tree() *scopeTree {
	return t.tree
}

func (t *scopeTracker) OnScopeCreate(child *host.Ctx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if child.Parent() == nil {
		t.bindings[child] = &scopeBinding{
			id:        RootScopeID,
			parentID:  "",
			replaying: t.rootAlreadyFinished,
		}
		return
	}

	parentBinding := t.bindings[child.Parent()]
	parentID := RootScopeID
	if parentBinding != nil {
		parentID = parentBinding.id
	}

	queue := t.pending[parentID]
	if len(queue) > 0 {
		next := queue[0]
		t.pending[parentID] = queue[1:]
		t.bindings[child] = &scopeBinding{id: next.Event.ScopeID, parentID: parentID, replaying: true}
		t.tree.Add(parentID, next.Event.ScopeID)
		return
	}

	id := t.ids.NextScopeID()
	t.bindings[child] = &scopeBinding{id: id, parentID: parentID, replaying: false}
	t.tree.Add(parentID, id)
	t.stream.Append(DurableEvent{
		Type:          EventScopeCreated,
		ScopeID:       id,
		ParentScopeID: parentID,
	})
}

func (t *scopeTracker) OnContextSet(ctx *host.Ctx, name string, value any) {
	t.mu.Lock()
	b := t.bindings[ctx]
	t.mu.Unlock()
	if b == nil || b.replaying {
		return
	}
	raw, _ := ToJSONValue(value)
	t.stream.Append(DurableEvent{
		Type:        EventScopeSet,
		ScopeID:     b.id,
		ContextName: name,
		Value:       raw,
	})
}

func (t *scopeTracker) OnContextDelete(ctx *host.Ctx, name string) {
	t.mu.Lock()
	b := t.bindings[ctx]
	t.mu.Unlock()
	if b == nil || b.replaying {
		return
	}
	t.stream.Append(DurableEvent{
		Type:        EventScopeDelete,
		ScopeID:     b.id,
		ContextName: name,
	})
}

func (t *scopeTracker) OnWorkflowReturn(ctx *host.Ctx, value any) {
	t.mu.Lock()
	b := t.bindings[ctx]
	t.mu.Unlock()
	if b == nil || b.replaying {
		return
	}
	raw, _ := ToJSONValue(value)
	t.stream.Append(DurableEvent{
		Type:    EventWorkflowReturn,
		ScopeID: b.id,
		Value:   raw,
	})
}

func (t *scopeTracker) OnScopeDestroy(ctx *host.Ctx, result host.ScopeResult) {
	t.mu.Lock()
	b := t.bindings[ctx]
	delete(t.bindings, ctx)
	delete(t.pending, b.idOrEmpty())
	t.tree.Remove(b.idOrEmpty())
	t.mu.Unlock()
	if b == nil || b.replaying {
		return
	}
	halted := interruptedBy(ctx, result.Err)
	if halted && b.id == RootScopeID {
		// Only the root's own termination record is suppressed here:
		// recording it would mark the whole invocation "already
		// finished" (rootAlreadyFinished) for every future resume,
		// even though a mere Halt/cancellation decided nothing about
		// the workflow's actual outcome (see interruptedBy in
		// reducer.go). Non-root scopes have no such tension — a
		// halted child scope really is done, for good, per spec
		// §4.4/§8 property 7 — so they are recorded below like any
		// other destroy.
		return
	}
	sr := &ScopeResult{OK: result.OK}
	switch {
	case halted:
		sr.OK = false
		sr.Error = NormalizeError(&HaltError{Cause: result.Err})
	case !result.OK:
		sr.Error = NormalizeError(result.Err)
	}
	t.stream.Append(DurableEvent{
		Type:    EventScopeDestroyed,
		ScopeID: b.id,
		Result:  sr,
	})
}

func (b *scopeBinding) idOrEmpty() string {
	if b == nil {
		return ""
	}
	return b.id
}

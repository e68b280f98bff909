package durable

// Durably (below) is the package's entry point; see doc.go for the
// package-level overview.

import (
	"context"

	"github.com/durable-go/durable/host"
)

// durablyConfig accumulates the functional options passed to Durably.
type durablyConfig struct {
	extraScopeMW  []host.ScopeMiddleware
	extraEffectMW []host.EffectMiddleware
	treeHandle    *ScopeTreeHandle
}

// ScopeTree is a read-only view onto the live parent/child scope
// relationships of one Durably invocation, for introspection and
// visualization (see extensions/scopetree).
type ScopeTree struct {
	inner *scopeTree
}

// Children returns scopeID's direct children, in creation order.
func (t *ScopeTree) Children(scopeID string) []string { return t.inner.Children(scopeID) }

// Descendants returns every scope transitively created under scopeID.
func (t *ScopeTree) Descendants(scopeID string) []string { return t.inner.Descendants(scopeID) }

// ScopeTreeHandle receives the live ScopeTree once a Durably
// invocation it was passed to via WithScopeTreeHandle has set up its
// scope tracker. It is populated before operation starts running, so
// a goroutine holding the handle may read Tree concurrently with the
// workflow.
type ScopeTreeHandle struct {
	Tree *ScopeTree
}

// WithScopeTreeHandle arranges for h.Tree to be populated with a
// ScopeTree view of this invocation's scopes.
func WithScopeTreeHandle(h *ScopeTreeHandle) Option {
	return func(c *durablyConfig) { c.treeHandle = h }
}

// Option configures a Durably invocation.
type Option func(*durablyConfig)

// WithScopeObserver chains an additional host.ScopeMiddleware after the
// durable scope tracker, useful for logging or debugging without
// interfering with replay.
func WithScopeObserver(mw host.ScopeMiddleware) Option {
	return func(c *durablyConfig) { c.extraScopeMW = append(c.extraScopeMW, mw) }
}

// WithEffectObserver chains an additional host.EffectMiddleware after
// the reducer.
func WithEffectObserver(mw host.EffectMiddleware) Option {
	return func(c *durablyConfig) { c.extraEffectMW = append(c.extraEffectMW, mw) }
}

// Durably runs operation as the root scope of a fresh host.Runtime,
// wired to replay against whatever prefix of events stream already
// holds and to record everything beyond that prefix. It blocks until
// operation's root scope returns, is cancelled via ctx, or a
// DivergenceError is raised.
//
// The root scope's own lifecycle is handled the same way every other
// scope's is: scope "root" is implicit and never recorded by a
// scope:created event, but its eventual workflow:return and
// scope:destroyed are recorded exactly once, on whichever invocation
// actually completes it. A Durably call against a stream whose root
// scope already finished replays straight through with no new effects.
//
// A nil stream is not an error: Durably creates an ephemeral
// InMemoryDurableStream and runs operation against it exactly as it
// would against any other fresh stream, except nothing persists once
// the call returns.
//
// A stream must not be attached to two live Durably invocations at
// once; nothing here locks the stream to enforce that.
func Durably(ctx context.Context, stream DurableStream, operation host.WorkflowFunc, opts ...Option) (any, error) {
	if stream == nil {
		stream = NewInMemoryDurableStream()
	}

	cfg := &durablyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	entries, err := stream.Read(0)
	if err != nil {
		return nil, err
	}

	ids := newIDAllocator(entries)
	tracker := newScopeTracker(stream, ids, entries)
	red := newReducer(stream, ids, entries, tracker.ScopeID)

	if cfg.treeHandle != nil {
		cfg.treeHandle.Tree = &ScopeTree{inner: tracker.Tree()}
	}

	scopeMW := host.ScopeMiddleware(tracker)
	if len(cfg.extraScopeMW) > 0 {
		scopeMW = ChainScopeMiddleware(append([]host.ScopeMiddleware{tracker}, cfg.extraScopeMW...)...)
	}
	effectMW := host.EffectMiddleware(red)
	if len(cfg.extraEffectMW) > 0 {
		effectMW = ChainEffectMiddleware(append([]host.EffectMiddleware{red}, cfg.extraEffectMW...)...)
	}

	rt := host.NewRuntime(
		host.WithEffectMiddleware(effectMW),
		host.WithScopeMiddleware(scopeMW),
	)
	return host.Root(ctx, rt, operation)
}

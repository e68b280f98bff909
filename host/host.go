// Package host supplies the live execution substrate that the durable
// reducer sits in front of: scopes, goroutine-backed children, context
// slots and the cleanup stack. None of it knows about durability — a
// *Ctx runs exactly the same whether or not a recorder is attached.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// WorkflowFunc is the body of a scope: the user's workflow, or any
// function spawned as a child of one.
type WorkflowFunc func(ctx *Ctx) (any, error)

// Reduction describes one effect about to run: a human-readable
// description (matched against the stream on replay) and the function
// that actually produces the value or error.
type Reduction struct {
	Description string
	Run         func(context.Context) (any, error)
}

// EffectMiddleware intercepts every effect a workflow performs. The
// durable package's reducer records and replays effects; the
// extensions/logging Middleware only observes them; tests may install
// a no-op one that just calls next.
type EffectMiddleware interface {
	Reduce(ctx *Ctx, r Reduction, next func() (any, error)) (any, error)
}

// ScopeMiddleware observes scope lifecycle transitions. The durable
// package's scope tracker records them to the stream; the
// extensions/logging ScopeObserver logs them.
type ScopeMiddleware interface {
	OnScopeCreate(child *Ctx)
	OnContextSet(ctx *Ctx, name string, value any)
	OnContextDelete(ctx *Ctx, name string)
	OnWorkflowReturn(ctx *Ctx, value any)
	OnScopeDestroy(ctx *Ctx, result ScopeResult)
}

// ScopeResult is the terminal outcome of a scope.
type ScopeResult struct {
	OK  bool
	Err error
}

// Runtime owns the middleware chain and the goroutine bookkeeping
// shared by every scope spawned under it.
type Runtime struct {
	effectMW EffectMiddleware
	scopeMW  ScopeMiddleware

	localSeq atomic.Uint64
	wg       sync.WaitGroup

	ctxPool sync.Pool
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithEffectMiddleware installs the middleware effects are reduced
// through. Without one, effects just run live.
func WithEffectMiddleware(mw EffectMiddleware) Option {
	return func(r *Runtime) { r.effectMW = mw }
}

// WithScopeMiddleware installs the middleware scope lifecycle events
// are reported to.
func WithScopeMiddleware(mw ScopeMiddleware) Option {
	return func(r *Runtime) { r.scopeMW = mw }
}

// NewRuntime constructs a Runtime with no scopes running yet. Call Root
// to obtain the root scope and start the workflow.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	r.ctxPool.New = func() any { return &Ctx{} }
	return r
}

func (r *Runtime) nextLocalID() uint64 {
	return r.localSeq.Add(1) - 1
}

// ChildHandle is the live handle returned by Spawn, mirroring the
// teacher's ExecutionTree node: a caller can await, resume or halt the
// child without holding a reference to its *Ctx.
type ChildHandle struct {
	Name string

	ctx      *Ctx
	done     chan struct{}
	result   any
	err      error
	resultMu sync.Mutex
}

type workflowResult struct {
	value any
	err   error
}

// Await blocks until the child scope returns, or ctx is done first.
func (h *ChildHandle) Await(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		h.resultMu.Lock()
		defer h.resultMu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resume delivers a value to a child blocked in Suspend. If the child
// is not currently suspended, the value waits in a one-slot buffer for
// its next Suspend. Resume returns false, dropping value, only when
// that slot is already full.
func (h *ChildHandle) Resume(value any) bool {
	select {
	case h.ctx.resumeCh <- value:
		return true
	default:
		return false
	}
}

// Halt cancels the child scope and waits for its cleanup stack to run.
func (h *ChildHandle) Halt(ctx context.Context) error {
	h.ctx.cancel()
	_, err := h.Await(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Ctx is the live analogue of the teacher's ExecutionCtx/ResolveCtx: a
// handle threaded through a running scope that lets workflow code
// perform effects, spawn children and manage cleanup.
type Ctx struct {
	id     uint64
	parent *Ctx
	root   *Runtime

	goCtx  context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	data      map[string]any
	cleanups  []func() error
	children  []*Ctx
	inCleanup bool

	resumeCh chan any
}

// Context returns the underlying context.Context, cancelled when the
// scope is halted.
func (c *Ctx) Context() context.Context { return c.goCtx }

// ID is a process-local sequence number, distinct from any durable
// scope id a ScopeMiddleware may assign to this Ctx.
func (c *Ctx) ID() uint64 { return c.id }

// Parent returns the enclosing scope, or nil for the root.
func (c *Ctx) Parent() *Ctx { return c.parent }

// Do runs description/run through the installed EffectMiddleware. With
// no middleware installed it just calls run.
//
// A scope whose context is already cancelled normally short-circuits
// here without ever reaching the middleware: there is no point
// recording an effect a halted workflow body can't use. Cleanup code
// running after that same cancellation is the one exception — it must
// still be able to perform and record effects of its own, so while
// runCleanups is driving this scope, Do runs against a context that
// carries the same values but is never itself Done, and still goes
// through the middleware like any live effect.
func (c *Ctx) Do(description string, run func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	inCleanup := c.inCleanup
	c.mu.Unlock()

	runCtx := c.goCtx
	if inCleanup {
		runCtx = context.WithoutCancel(c.goCtx)
	} else if c.goCtx.Err() != nil {
		return nil, c.goCtx.Err()
	}

	wrapped := func(context.Context) (any, error) { return run(runCtx) }
	if c.root.effectMW == nil {
		return wrapped(runCtx)
	}
	r := Reduction{Description: description, Run: wrapped}
	return c.root.effectMW.Reduce(c, r, func() (any, error) { return wrapped(runCtx) })
}

// Spawn starts fn as a new child scope and returns a live handle to
// it. The child inherits cancellation from c: cancelling c cancels
// every descendant.
func (c *Ctx) Spawn(name string, fn WorkflowFunc) *ChildHandle {
	childGoCtx, cancel := context.WithCancel(c.goCtx)
	child := c.root.ctxPool.Get().(*Ctx)
	child.id = c.root.nextLocalID()
	child.parent = c
	child.root = c.root
	child.goCtx = childGoCtx
	child.cancel = cancel
	if child.data == nil {
		child.data = make(map[string]any)
	} else {
		for k := range child.data {
			delete(child.data, k)
		}
	}
	child.cleanups = child.cleanups[:0]
	child.children = child.children[:0]
	child.inCleanup = false
	child.resumeCh = make(chan any, 1)

	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()

	if c.root.scopeMW != nil {
		c.root.scopeMW.OnScopeCreate(child)
	}

	h := &ChildHandle{Name: name, ctx: child, done: make(chan struct{})}
	c.root.wg.Add(1)
	go func() {
		defer c.root.wg.Done()
		defer cancel()
		value, err := runScope(child, fn)
		h.resultMu.Lock()
		h.result, h.err = value, err
		h.resultMu.Unlock()
		close(h.done)
		c.root.ctxPool.Put(child)
	}()
	return h
}

func runScope(ctx *Ctx, fn WorkflowFunc) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Recovered: rec}
		}
		if cerr := ctx.runCleanups(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if ctx.root.scopeMW != nil {
			if err == nil {
				ctx.root.scopeMW.OnWorkflowReturn(ctx, result)
			}
			ctx.root.scopeMW.OnScopeDestroy(ctx, ScopeResult{OK: err == nil, Err: err})
		}
	}()
	result, err = fn(ctx)
	return
}

// PanicError wraps a recovered panic value so it flows through the
// same error path as a returned error.
type PanicError struct {
	Recovered any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("host: workflow panicked: %v", e.Recovered)
}

// OnCleanup registers fn to run, in LIFO order with every other
// registered cleanup, once this scope's workflow function returns.
func (c *Ctx) OnCleanup(fn func() error) {
	c.mu.Lock()
	c.cleanups = append(c.cleanups, fn)
	c.mu.Unlock()
}

func (c *Ctx) runCleanups() error {
	c.mu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.inCleanup = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inCleanup = false
		c.mu.Unlock()
	}()

	var err error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if cerr := cleanups[i](); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// SetContext binds name to value in this scope's context slots.
func (c *Ctx) SetContext(name string, value any) {
	c.mu.Lock()
	c.data[name] = value
	c.mu.Unlock()
	if c.root.scopeMW != nil {
		c.root.scopeMW.OnContextSet(c, name, value)
	}
}

// DeleteContext removes name from this scope's own context slots. It
// does not affect parent scopes.
func (c *Ctx) DeleteContext(name string) {
	c.mu.Lock()
	delete(c.data, name)
	c.mu.Unlock()
	if c.root.scopeMW != nil {
		c.root.scopeMW.OnContextDelete(c, name)
	}
}

// GetContext looks up name in this scope only.
func (c *Ctx) GetContext(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[name]
	return v, ok
}

// Lookup walks from this scope up through its ancestors and returns
// the first binding of name it finds.
func (c *Ctx) Lookup(name string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		v, ok := cur.data[name]
		cur.mu.Unlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Root constructs the outermost scope of a Runtime and runs fn in it,
// blocking until fn returns or the provided context is cancelled.
func Root(ctx context.Context, r *Runtime, fn WorkflowFunc) (any, error) {
	goCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	root := &Ctx{
		root:  r,
		goCtx: goCtx,
		data:  make(map[string]any),
	}
	if r.scopeMW != nil {
		r.scopeMW.OnScopeCreate(root)
	}
	return runScope(root, fn)
}

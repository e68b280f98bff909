package durable

import "github.com/durable-go/durable/host"

// chainedEffectMiddleware runs a list of host.EffectMiddleware in
// order, each wrapping the next, mirroring the teacher's Extension.Wrap
// chaining (scope.go's Resolve loop over UseExtension-registered
// extensions).
type chainedEffectMiddleware struct {
	chain []host.EffectMiddleware
}

// ChainEffectMiddleware composes several middlewares into one, with
// mw[0] seeing the effect first and controlling whether mw[1] (and so
// on) ever runs.
func ChainEffectMiddleware(mw ...host.EffectMiddleware) host.EffectMiddleware {
	if len(mw) == 1 {
		return mw[0]
	}
	return &chainedEffectMiddleware{chain: mw}
}

func (c *chainedEffectMiddleware) Reduce(ctx *host.Ctx, r host.Reduction, next func() (any, error)) (any, error) {
	return c.reduceAt(0, ctx, r, next)
}

func (c *chainedEffectMiddleware) reduceAt(i int, ctx *host.Ctx, r host.Reduction, next func() (any, error)) (any, error) {
	if i >= len(c.chain) {
		return next()
	}
	return c.chain[i].Reduce(ctx, r, func() (any, error) {
		return c.reduceAt(i+1, ctx, r, next)
	})
}

// chainedScopeMiddleware fans every lifecycle callback out to a list of
// host.ScopeMiddleware, in order.
type chainedScopeMiddleware struct {
	chain []host.ScopeMiddleware
}

// ChainScopeMiddleware composes several scope middlewares into one.
func ChainScopeMiddleware(mw ...host.ScopeMiddleware) host.ScopeMiddleware {
	if len(mw) == 1 {
		return mw[0]
	}
	return &chainedScopeMiddleware{chain: mw}
}

func (c *chainedScopeMiddleware) OnScopeCreate(child *host.Ctx) {
	for _, m := range c.chain {
		m.OnScopeCreate(child)
	}
}

func (c *chainedScopeMiddleware) OnContextSet(ctx *host.Ctx, name string, value any) {
	for _, m := range c.chain {
		m.OnContextSet(ctx, name, value)
	}
}

func (c *chainedScopeMiddleware) OnContextDelete(ctx *host.Ctx, name string) {
	for _, m := range c.chain {
		m.OnContextDelete(ctx, name)
	}
}

func (c *chainedScopeMiddleware) OnWorkflowReturn(ctx *host.Ctx, value any) {
	for _, m := range c.chain {
		m.OnWorkflowReturn(ctx, value)
	}
}

func (c *chainedScopeMiddleware) OnScopeDestroy(ctx *host.Ctx, result host.ScopeResult) {
	for _, m := range c.chain {
		m.OnScopeDestroy(ctx, result)
	}
}

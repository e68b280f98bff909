// Package logging provides a structured-logging observer for durable
// invocations, adapted from the teacher's extensions.LoggingExtension
// (extensions/logging.go): same "wrap every operation, log start and
// outcome" shape, moved from fmt.Printf onto log/slog so it composes
// with whatever handler the host application already uses.
package logging

import (
	"log/slog"
	"time"

	"github.com/durable-go/durable/host"
)

// Middleware logs every effect a workflow performs.
type Middleware struct {
	logger *slog.Logger
}

// New returns a Middleware that logs through logger. A nil logger logs
// through slog.Default().
func New(logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{logger: logger}
}

// Reduce implements host.EffectMiddleware.
func (m *Middleware) Reduce(ctx *host.Ctx, r host.Reduction, next func() (any, error)) (any, error) {
	start := time.Now()
	m.logger.Debug("effect starting", "description", r.Description, "scope", ctx.ID())

	result, err := next()

	elapsed := time.Since(start)
	if err != nil {
		m.logger.Error("effect failed", "description", r.Description, "elapsed", elapsed, "error", err)
	} else {
		m.logger.Debug("effect completed", "description", r.Description, "elapsed", elapsed)
	}
	return result, err
}

// ScopeObserver logs scope lifecycle transitions.
type ScopeObserver struct {
	logger *slog.Logger
}

// NewScopeObserver returns a ScopeObserver that logs through logger.
func NewScopeObserver(logger *slog.Logger) *ScopeObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeObserver{logger: logger}
}

func (o *ScopeObserver) OnScopeCreate(child *host.Ctx) {
	o.logger.Debug("scope created", "id", child.ID())
}

func (o *ScopeObserver) OnContextSet(ctx *host.Ctx, name string, value any) {
	o.logger.Debug("scope context set", "id", ctx.ID(), "name", name)
}

func (o *ScopeObserver) OnContextDelete(ctx *host.Ctx, name string) {
	o.logger.Debug("scope context deleted", "id", ctx.ID(), "name", name)
}

func (o *ScopeObserver) OnWorkflowReturn(ctx *host.Ctx, value any) {
	o.logger.Debug("workflow returned", "id", ctx.ID())
}

func (o *ScopeObserver) OnScopeDestroy(ctx *host.Ctx, result host.ScopeResult) {
	if result.OK {
		o.logger.Debug("scope destroyed", "id", ctx.ID())
	} else {
		o.logger.Error("scope destroyed with error", "id", ctx.ID(), "error", result.Err)
	}
}

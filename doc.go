// Package durable gives ordinary Go functions durable, replayable
// execution: the ability to be interrupted at any point — process
// restart, deliberate suspend, crash — and resumed later from exactly
// where they left off, having re-observed every effect they already
// performed without performing it again.
//
// # Overview
//
// A workflow is any host.WorkflowFunc: a function taking a *host.Ctx
// and returning a value or an error. Every side effect it performs —
// an API call, a sleep, a spawned child scope — goes through the Ctx,
// which records it to a DurableStream as it happens. Run the same
// workflow again against the same stream and the recorded effects are
// replayed instead of re-executed: their results are handed back
// without the underlying work happening twice.
//
//	stream := durable.NewInMemoryDurableStream()
//	result, err := durable.Durably(ctx, stream, func(c *host.Ctx) (any, error) {
//	    v, err := c.Action("charge-card", func(ctx context.Context) (any, error) {
//	        return chargeCard(ctx, customerID, amount)
//	    })
//	    if err != nil {
//	        return nil, err
//	    }
//	    return v, nil
//	})
//
// If the process dies after charge-card records its result but before
// the workflow returns, calling Durably again with the same stream
// replays charge-card's recorded result and continues from there —
// the card is never charged twice.
//
// # Scopes
//
// A workflow's root runs as scope "root". Ctx.Spawn starts a child
// scope that runs concurrently and is itself subject to replay:
// spawning, cleanup and cancellation all mirror effects in being
// recorded once and replayed thereafter.
//
// # Divergence
//
// Replay assumes the workflow takes the same sequence of effects it
// took last time. If it doesn't — a conditional branches differently
// given the same recorded inputs — the effect actually performed
// won't match the one recorded at the current replay position, and
// Durably returns a *DivergenceError rather than silently running the
// wrong thing.
//
// # Non-serializable values
//
// Some effects produce values that cannot be written to the stream at
// all — a context, a channel, a live scope handle. These are recorded
// behind a LiveOnlySentinel; on replay the effect's body runs again to
// mint a fresh live value of the same kind, rather than attempting to
// reconstruct the original from the log.
package durable

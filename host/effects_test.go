package host

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRaceReturnsFastestBranch(t *testing.T) {
	rt := NewRuntime()
	result, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return c.Race(
			NamedEffect{Description: "slow", Run: func(ctx context.Context) (any, error) {
				select {
				case <-time.After(50 * time.Millisecond):
					return "slow", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}},
			NamedEffect{Description: "fast", Run: func(ctx context.Context) (any, error) {
				return "fast", nil
			}},
		)
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if result != "fast" {
		t.Fatalf("expected fast branch to win, got %v", result)
	}
}

func TestAllWaitsForEveryBranch(t *testing.T) {
	rt := NewRuntime()
	result, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return c.All(
			NamedEffect{Description: "a", Run: func(context.Context) (any, error) { return 1, nil }},
			NamedEffect{Description: "b", Run: func(context.Context) (any, error) { return 2, nil }},
		)
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) != 2 || values[0] != 1 || values[1] != 2 {
		t.Fatalf("unexpected All result: %#v", result)
	}
}

func TestAllReturnsFirstError(t *testing.T) {
	rt := NewRuntime()
	wantErr := errors.New("branch failed")
	_, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return c.All(
			NamedEffect{Description: "ok", Run: func(context.Context) (any, error) { return nil, nil }},
			NamedEffect{Description: "bad", Run: func(context.Context) (any, error) { return nil, wantErr }},
		)
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestSignalSendAndReceive(t *testing.T) {
	sig := NewSignal()
	rt := NewRuntime()
	go func() {
		time.Sleep(10 * time.Millisecond)
		sig.Send("hello")
	}()
	result, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return c.Receive("greeting", sig)
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if result != "hello" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestSignalLiveOnlyType(t *testing.T) {
	sig := NewSignal()
	if sig.LiveOnlyType() != "Signal" {
		t.Fatalf("unexpected live-only type: %s", sig.LiveOnlyType())
	}
}

func TestIntervalStopsOnCallbackError(t *testing.T) {
	rt := NewRuntime()
	wantErr := errors.New("tick failed")
	count := 0
	_, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		ierr := c.Interval(5*time.Millisecond, func(context.Context) error {
			count++
			if count >= 3 {
				return wantErr
			}
			return nil
		})
		return nil, ierr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if count < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", count)
	}
}

func TestUseAbortSignalReflectsScopeCancellation(t *testing.T) {
	rt := NewRuntime()
	_, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		abort, aerr := c.UseAbortSignal()
		if aerr != nil {
			return nil, aerr
		}
		select {
		case <-abort.Done():
			t.Fatalf("abort signal fired before cancellation")
		default:
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
}

func TestSleepCompletesAfterDuration(t *testing.T) {
	rt := NewRuntime()
	start := time.Now()
	_, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return nil, c.Sleep(20 * time.Millisecond)
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("Sleep returned too early")
	}
}

func TestFutureResolveAndAwait(t *testing.T) {
	fut := NewFuture[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		fut.Resolve(42)
	}()
	rt := NewRuntime()
	result, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return Resolver(c, "wait-for-callback", fut)
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if result != 42 {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestFutureReject(t *testing.T) {
	fut := NewFuture[int]()
	wantErr := errors.New("callback failed")
	go func() {
		time.Sleep(10 * time.Millisecond)
		fut.Reject(wantErr)
	}()
	rt := NewRuntime()
	_, err := Root(context.Background(), rt, func(c *Ctx) (any, error) {
		return Resolver(c, "wait-for-callback", fut)
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

package durable

import (
	"context"
	"testing"

	"github.com/durable-go/durable/host"
)

func TestContextSlotSetGetRelease(t *testing.T) {
	rt := host.NewRuntime()
	_, err := host.Root(context.Background(), rt, func(c *host.Ctx) (any, error) {
		slot := Slot[string](c, "user-id")
		if slot.IsBound() {
			t.Fatalf("expected slot to start unbound")
		}
		if _, ok := slot.Get(); ok {
			t.Fatalf("expected Get on unbound slot to report not-ok")
		}
		slot.Set("u-42")
		if !slot.IsBound() {
			t.Fatalf("expected slot to be bound after Set")
		}
		v, ok := slot.Get()
		if !ok || v != "u-42" {
			t.Fatalf("unexpected Get result: %v, %v", v, ok)
		}
		slot.Release()
		if slot.IsBound() {
			t.Fatalf("expected slot to be unbound after Release")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
}

func TestContextSlotGetWalksToAncestor(t *testing.T) {
	rt := host.NewRuntime()
	_, err := host.Root(context.Background(), rt, func(c *host.Ctx) (any, error) {
		Slot[int](c, "count").Set(7)
		h := c.Spawn("child", func(child *host.Ctx) (any, error) {
			v, ok := Slot[int](child, "count").Get()
			if !ok || v != 7 {
				t.Fatalf("expected child to see parent's binding, got %v, %v", v, ok)
			}
			if _, ok := Slot[int](child, "count").Peek(); ok {
				t.Fatalf("expected Peek to ignore ancestor bindings")
			}
			return nil, nil
		})
		return h.Await(c.Context())
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
}

func TestContextSlotWrongTypeReportsNotOK(t *testing.T) {
	rt := host.NewRuntime()
	_, err := host.Root(context.Background(), rt, func(c *host.Ctx) (any, error) {
		c.SetContext("mixed", 123)
		if _, ok := Slot[string](c, "mixed").Get(); ok {
			t.Fatalf("expected type mismatch to report not-ok")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
}

package durable

import "github.com/durable-go/durable/host"

// ContextSlot provides typed, lifecycle-aware access to a single named
// context binding on a scope, adapted from the teacher's Controller[T]
// (controller.go): where that type controlled an executor's cached,
// reactively-propagated value, this one controls one entry of a
// host.Ctx's context map, with the same get/set/release vocabulary.
type ContextSlot[T any] struct {
	ctx  *host.Ctx
	name string
}

// Slot returns a ContextSlot bound to name on ctx.
func Slot[T any](ctx *host.Ctx, name string) ContextSlot[T] {
	return ContextSlot[T]{ctx: ctx, name: name}
}

// Get returns the slot's value, resolving from an ancestor scope if
// this scope has not set it directly.
func (s ContextSlot[T]) Get() (T, bool) {
	v, ok := s.ctx.Lookup(s.name)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}

// Peek returns the value bound directly on this scope, ignoring
// ancestors.
func (s ContextSlot[T]) Peek() (T, bool) {
	v, ok := s.ctx.GetContext(s.name)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, true
}

// Set binds value on this scope.
func (s ContextSlot[T]) Set(value T) {
	s.ctx.SetContext(s.name, value)
}

// Release removes this scope's own binding. Ancestor bindings, if any,
// become visible again through Get.
func (s ContextSlot[T]) Release() {
	s.ctx.DeleteContext(s.name)
}

// IsBound reports whether this scope (not an ancestor) currently holds
// a value for the slot.
func (s ContextSlot[T]) IsBound() bool {
	_, ok := s.ctx.GetContext(s.name)
	return ok
}

package durable

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	effectIDPrefix = "effect-"
	scopeIDPrefix  = "scope-"
)

// idAllocator deterministically allocates fresh effect and scope ids so
// that, across any number of resume cycles on the same stream, newly
// issued ids never collide with ones already recorded (spec.md §3's ID
// Allocator lifecycle).
type idAllocator struct {
	nextEffect atomic.Uint64
	nextScope  atomic.Uint64
}

// newIDAllocator scans entries (typically the full prior contents of a
// stream) for the highest numeric suffix used by any effect:yielded.effectId
// or non-root scope:created.scopeId, and seeds the allocator one past it.
func newIDAllocator(entries []StreamEntry) *idAllocator {
	a := &idAllocator{}
	var maxEffect, maxScope uint64
	for _, entry := range entries {
		switch entry.Event.Type {
		case EventEffectYielded:
			if n, ok := parseSuffix(entry.Event.EffectID, effectIDPrefix); ok && n+1 > maxEffect {
				maxEffect = n + 1
			}
		case EventScopeCreated:
			if entry.Event.ScopeID == RootScopeID {
				continue
			}
			if n, ok := parseSuffix(entry.Event.ScopeID, scopeIDPrefix); ok && n+1 > maxScope {
				maxScope = n + 1
			}
		}
	}
	a.nextEffect.Store(maxEffect)
	a.nextScope.Store(maxScope)
	return a
}

func parseSuffix(id, prefix string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(id, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextEffectID returns a fresh, never-before-seen effect id.
func (a *idAllocator) NextEffectID() string {
	n := a.nextEffect.Add(1) - 1
	return fmt.Sprintf("%s%d", effectIDPrefix, n)
}

// NextScopeID returns a fresh, never-before-seen non-root scope id.
func (a *idAllocator) NextScopeID() string {
	n := a.nextScope.Add(1) - 1
	return fmt.Sprintf("%s%d", scopeIDPrefix, n)
}

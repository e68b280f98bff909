package durable

import (
	"bytes"
	"encoding/json"
	"sync"
)

// PoolManager manages the object pools used on the hot path of
// recording and replaying events, adapted from the teacher's
// PoolManager (pool_manager.go): same acquire/release-with-metrics
// shape, retargeted from pooling ResolveCtx/ExecutionCtx/Extension
// values to pooling the scratch buffers and probe maps event.go
// allocates once per effect.
type PoolManager struct {
	bufferPool sync.Pool
	probePool  sync.Pool

	metrics PoolMetrics
}

// PoolMetrics tracks pool usage statistics.
type PoolMetrics struct {
	mu            sync.RWMutex
	bufferHits    uint64
	bufferMisses  uint64
	probeHits     uint64
	probeMisses   uint64
}

// NewPoolManager creates a pool manager with empty pools. The pools have
// no New func, so an acquire on an empty pool is counted as a miss and
// allocates in AcquireBuffer/AcquireProbeMap.
func NewPoolManager() *PoolManager {
	return &PoolManager{}
}

// AcquireBuffer gets a *bytes.Buffer from the pool or creates a new
// one. The caller must call ReleaseBuffer when done.
func (pm *PoolManager) AcquireBuffer() *bytes.Buffer {
	buf, ok := pm.bufferPool.Get().(*bytes.Buffer)
	pm.metrics.mu.Lock()
	if ok {
		pm.metrics.bufferHits++
	} else {
		pm.metrics.bufferMisses++
	}
	pm.metrics.mu.Unlock()
	if !ok {
		buf = new(bytes.Buffer)
	}
	return buf
}

// ReleaseBuffer returns buf to the pool.
func (pm *PoolManager) ReleaseBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	pm.bufferPool.Put(buf)
}

// AcquireProbeMap gets a scratch map from the pool or creates a new
// one, used to sniff a decoded value for the `__liveOnly` sentinel key
// before deciding how to fully unmarshal it.
func (pm *PoolManager) AcquireProbeMap() map[string]json.RawMessage {
	m, ok := pm.probePool.Get().(map[string]json.RawMessage)
	pm.metrics.mu.Lock()
	if ok {
		pm.metrics.probeHits++
	} else {
		pm.metrics.probeMisses++
	}
	pm.metrics.mu.Unlock()
	if !ok {
		m = make(map[string]json.RawMessage, 8)
	}
	return m
}

// ReleaseProbeMap returns m to the pool.
func (pm *PoolManager) ReleaseProbeMap(m map[string]json.RawMessage) {
	if m == nil {
		return
	}
	for k := range m {
		delete(m, k)
	}
	pm.probePool.Put(m)
}

// GetMetrics returns a copy of the current pool metrics.
func (pm *PoolManager) GetMetrics() PoolMetrics {
	pm.metrics.mu.RLock()
	defer pm.metrics.mu.RUnlock()
	return PoolMetrics{
		bufferHits:   pm.metrics.bufferHits,
		bufferMisses: pm.metrics.bufferMisses,
		probeHits:    pm.metrics.probeHits,
		probeMisses:  pm.metrics.probeMisses,
	}
}

// ResetMetrics resets all pool metrics to zero.
func (pm *PoolManager) ResetMetrics() {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()
	pm.metrics.bufferHits = 0
	pm.metrics.bufferMisses = 0
	pm.metrics.probeHits = 0
	pm.metrics.probeMisses = 0
}

// globalPoolManager is shared by every Durably invocation in the
// process; its pools hold no per-invocation state, only reusable
// scratch allocations.
var globalPoolManager = NewPoolManager()

// GetGlobalPoolManager returns the global pool manager instance.
func GetGlobalPoolManager() *PoolManager {
	return globalPoolManager
}

package durable

import "testing"

func TestPoolManagerBufferAcquireReleaseRoundTrip(t *testing.T) {
	pm := NewPoolManager()
	buf := pm.AcquireBuffer()
	buf.WriteString("hello")
	pm.ReleaseBuffer(buf)

	reused := pm.AcquireBuffer()
	if reused.Len() != 0 {
		t.Fatalf("expected released buffer to be reset, got %q", reused.String())
	}
}

func TestPoolManagerProbeMapAcquireReleaseRoundTrip(t *testing.T) {
	pm := NewPoolManager()
	m := pm.AcquireProbeMap()
	m["x"] = []byte(`1`)
	pm.ReleaseProbeMap(m)

	reused := pm.AcquireProbeMap()
	if len(reused) != 0 {
		t.Fatalf("expected released probe map to be cleared, got %v", reused)
	}
}

func TestPoolManagerMetricsTrackHitsAndMisses(t *testing.T) {
	pm := NewPoolManager()
	pm.ResetMetrics()

	buf := pm.AcquireBuffer()
	pm.ReleaseBuffer(buf)
	pm.AcquireBuffer()

	metrics := pm.GetMetrics()
	if metrics.bufferMisses < 1 {
		t.Fatalf("expected at least one buffer miss, got %d", metrics.bufferMisses)
	}
	if metrics.bufferHits < 1 {
		t.Fatalf("expected at least one buffer hit, got %d", metrics.bufferHits)
	}
}

func TestGetGlobalPoolManagerReturnsSingleton(t *testing.T) {
	if GetGlobalPoolManager() != GetGlobalPoolManager() {
		t.Fatalf("expected GetGlobalPoolManager to return the same instance")
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m
			}
		}
	}
	return nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordStoreRequest_CountsBySuccess は操作・成否ごとにカウントされることを検証する。
func TestRecordStoreRequest_CountsBySuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreRequest("create", true)
	c.RecordStoreRequest("create", true)
	c.RecordStoreRequest("create", false)

	ok := findMetric(t, reg, "wdblog_store_requests_total", map[string]string{"op": "create", "success": "true"})
	if ok == nil {
		t.Fatal("wdblog_store_requests_total{success=true} not found")
	}
	if v := ok.GetCounter().GetValue(); v != 2 {
		t.Errorf("success count = %v, want 2", v)
	}

	ng := findMetric(t, reg, "wdblog_store_requests_total", map[string]string{"op": "create", "success": "false"})
	if ng == nil {
		t.Fatal("wdblog_store_requests_total{success=false} not found")
	}
	if v := ng.GetCounter().GetValue(); v != 1 {
		t.Errorf("failure count = %v, want 1", v)
	}
}

// TestRecordStoreLatency_Observes はレイテンシヒストグラムに観測値が入ることを検証する。
func TestRecordStoreLatency_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreLatency("list", 150*time.Millisecond)

	m := findMetric(t, reg, "wdblog_store_latency_seconds", map[string]string{"op": "list"})
	if m == nil {
		t.Fatal("wdblog_store_latency_seconds not found")
	}
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
}

// TestRecordAuthAttempt_And_Bootstrap_And_Track は残りのカウンタを検証する。
func TestRecordAuthAttempt_And_Bootstrap_And_Track(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthAttempt("signIn", false)
	c.RecordBootstrap(true)
	c.RecordTrackEvent()
	c.RecordTrackEvent()

	if m := findMetric(t, reg, "wdblog_auth_attempts_total", map[string]string{"mode": "signIn", "success": "false"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("wdblog_auth_attempts_total{mode=signIn,success=false} should be 1")
	}
	if m := findMetric(t, reg, "wdblog_bootstrap_total", map[string]string{"success": "true"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("wdblog_bootstrap_total{success=true} should be 1")
	}
	if m := findMetric(t, reg, "wdblog_track_events_total", nil); m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("wdblog_track_events_total should be 2")
	}
}

// TestDiscard_DoesNotPanic はDiscardが安全に呼び出せることを検証する。
func TestDiscard_DoesNotPanic(t *testing.T) {
	Discard.RecordStoreRequest("list", true)
	Discard.RecordStoreLatency("list", time.Second)
	Discard.RecordAuthAttempt("signUp", true)
	Discard.RecordBootstrap(false)
	Discard.RecordTrackEvent()
}

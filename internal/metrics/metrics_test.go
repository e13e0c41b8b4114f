package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveDecision(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveDecision("allow", 200, 250*time.Millisecond)

	families := gather(t, rec, "authgate_auth_decisions_total", "authgate_auth_decision_duration_seconds")

	counter := findMetric(t, families["authgate_auth_decisions_total"], map[string]string{
		"outcome":     "allow",
		"status_code": "200",
	})
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["authgate_auth_decision_duration_seconds"], map[string]string{
		"outcome": "allow",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for decision latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderDecisionLabelFallbacks(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveDecision("", -1, time.Millisecond)

	families := gather(t, rec, "authgate_auth_decisions_total")
	counter := findMetric(t, families["authgate_auth_decisions_total"], map[string]string{
		"outcome":     "unknown",
		"status_code": "unknown",
	})
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup(CacheLookupHit)
	rec.ObserveCacheLookup(CacheLookupMiss)
	rec.ObserveCacheStore(CacheStoreStored)

	families := gather(t, rec, "authgate_session_cache_operations_total")

	for _, labels := range []map[string]string{
		{"operation": "lookup", "result": string(CacheLookupHit)},
		{"operation": "lookup", "result": string(CacheLookupMiss)},
		{"operation": "store", "result": string(CacheStoreStored)},
	} {
		metric := findMetric(t, families["authgate_session_cache_operations_total"], labels)
		if got := metric.GetCounter().GetValue(); got != 1 {
			t.Fatalf("labels %v: expected counter 1, got %v", labels, got)
		}
	}
}

func TestRecorderObserveIdentity(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveIdentity(IdentityResolved, 100*time.Millisecond)
	rec.ObserveIdentity(IdentityRejected, 50*time.Millisecond)

	families := gather(t, rec, "authgate_identity_request_duration_seconds")

	resolved := findMetric(t, families["authgate_identity_request_duration_seconds"], map[string]string{
		"result": string(IdentityResolved),
	})
	if resolved.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one resolved sample")
	}
	rejected := findMetric(t, families["authgate_identity_request_duration_seconds"], map[string]string{
		"result": string(IdentityRejected),
	})
	if rejected.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one rejected sample")
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveDecision("allow", 200, time.Millisecond)
	rec.ObserveCacheLookup(CacheLookupHit)
	rec.ObserveCacheStore(CacheStoreStored)
	rec.ObserveIdentity(IdentityResolved, time.Millisecond)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder handler, got %d", rr.Code)
	}
	if _, err := rec.Gatherer().Gather(); err != nil {
		t.Fatalf("nil recorder gatherer: %v", err)
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

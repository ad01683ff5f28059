package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}

func TestRecordUpstreamRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest("/api/me", 200)
	c.RecordUpstreamRequest("/api/me", 200)
	c.RecordUpstreamRequest("/api/login", 401)

	got := testutil.ToFloat64(c.upstreamRequests.WithLabelValues("/api/me", "200"))
	if got != 2 {
		t.Errorf("upstream_requests{/api/me,200} = %v, want 2", got)
	}
	got = testutil.ToFloat64(c.upstreamRequests.WithLabelValues("/api/login", "401"))
	if got != 1 {
		t.Errorf("upstream_requests{/api/login,401} = %v, want 1", got)
	}
}

func TestRecordLogin(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordLogin(false)

	if got := testutil.ToFloat64(c.logins.WithLabelValues("success")); got != 1 {
		t.Errorf("logins{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.logins.WithLabelValues("failure")); got != 2 {
		t.Errorf("logins{failure} = %v, want 2", got)
	}
}

func TestRecordConsentDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordConsentDecision(true)
	c.RecordConsentDecision(false)

	if got := testutil.ToFloat64(c.consentDecisions.WithLabelValues("authorized")); got != 1 {
		t.Errorf("consent_decisions{authorized} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.consentDecisions.WithLabelValues("denied")); got != 1 {
		t.Errorf("consent_decisions{denied} = %v, want 1", got)
	}
}

func TestRecordSessionsCleaned(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsCleaned(3)
	c.RecordSessionsCleaned(2)

	if got := testutil.ToFloat64(c.sessionsCleaned); got != 5 {
		t.Errorf("sessions_cleaned = %v, want 5", got)
	}
}

func TestRecordUpstreamLatency_DoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency("/api/me", 120*time.Millisecond)
	c.RecordUpstreamFailure("/api/me")
}

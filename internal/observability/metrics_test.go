package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return InitMetrics(prometheus.NewRegistry())
}

func TestInitMetrics_registersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}
}

func TestRecordInstanceStart(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordInstanceStart("def-1")
	m.RecordInstanceStart("def-1")

	if got := testutil.ToFloat64(m.InstanceStartsTotal.WithLabelValues("def-1")); got != 2 {
		t.Errorf("InstanceStartsTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InstancesActive.WithLabelValues("def-1")); got != 2 {
		t.Errorf("InstancesActive = %v, want 2", got)
	}
}

func TestRecordInstanceTerminal_decrementsActive(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordInstanceStart("def-1")
	m.RecordInstanceTerminal("def-1", "completed")

	if got := testutil.ToFloat64(m.InstancesActive.WithLabelValues("def-1")); got != 0 {
		t.Errorf("InstancesActive = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.InstanceCompletionsTotal.WithLabelValues("def-1", "completed")); got != 1 {
		t.Errorf("InstanceCompletionsTotal = %v, want 1", got)
	}
}

func TestRecordInstanceAdvance(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordInstanceAdvance("def-1", "1", 2*time.Hour)

	if got := testutil.ToFloat64(m.InstanceAdvancesTotal.WithLabelValues("def-1")); got != 1 {
		t.Errorf("InstanceAdvancesTotal = %v, want 1", got)
	}
}

func TestRecordApprovalDecision(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordApprovalDecision("def-1", "approved")
	m.RecordApprovalDecision("def-1", "rejected")

	if got := testutil.ToFloat64(m.ApprovalDecisionsTotal.WithLabelValues("def-1", "approved")); got != 1 {
		t.Errorf("approved decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ApprovalDecisionsTotal.WithLabelValues("def-1", "rejected")); got != 1 {
		t.Errorf("rejected decisions = %v, want 1", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordHTTPRequest("GET", "/api/tasks", 200, 15*time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/tasks", "200")); got != 1 {
		t.Errorf("HTTPRequestsTotal = %v, want 1", got)
	}
}

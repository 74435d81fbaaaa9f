package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// Step durations span minutes to days.
	stepDurationBuckets = []float64{60, 600, 3600, 14400, 86400, 259200, 604800}
)

// Metrics holds all Prometheus metric instruments.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Instance metrics
	InstanceStartsTotal      *prometheus.CounterVec
	InstanceAdvancesTotal    *prometheus.CounterVec
	InstanceCompletionsTotal *prometheus.CounterVec
	InstancesActive          *prometheus.GaugeVec
	StepDuration             *prometheus.HistogramVec

	// Task metrics
	TasksCreatedTotal   *prometheus.CounterVec
	TasksCompletedTotal *prometheus.CounterVec

	// Approval metrics
	ApprovalsRequestedTotal *prometheus.CounterVec
	ApprovalDecisionsTotal  *prometheus.CounterVec
	ApprovalEscalationsTotal *prometheus.CounterVec

	// Definition metrics
	DefinitionVersionsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procesio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		InstanceStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_instance_starts_total",
			Help: "Total number of process instance starts.",
		}, []string{"definition_id"}),
		InstanceAdvancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_instance_advances_total",
			Help: "Total number of step advancements.",
		}, []string{"definition_id"}),
		InstanceCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_instance_completions_total",
			Help: "Total number of terminal instance transitions.",
		}, []string{"definition_id", "final_status"}),
		InstancesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procesio_instances_active",
			Help: "Number of running process instances.",
		}, []string{"definition_id"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procesio_step_duration_seconds",
			Help:    "Observed time spent in a step before advancement.",
			Buckets: stepDurationBuckets,
		}, []string{"definition_id", "step"}),

		TasksCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_tasks_created_total",
			Help: "Total number of tasks created.",
		}, []string{"definition_id"}),
		TasksCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_tasks_completed_total",
			Help: "Total number of tasks completed or cancelled.",
		}, []string{"definition_id", "status"}),

		ApprovalsRequestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_approvals_requested_total",
			Help: "Total number of approvals requested.",
		}, []string{"definition_id"}),
		ApprovalDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_approval_decisions_total",
			Help: "Total number of approval decisions.",
		}, []string{"definition_id", "decision"}),
		ApprovalEscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_approval_escalations_total",
			Help: "Total number of approval escalations.",
		}, []string{"definition_id"}),

		DefinitionVersionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_definition_versions_total",
			Help: "Total number of definition versions created.",
		}, []string{"status"}),

		AuditEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procesio_audit_events_total",
			Help: "Total number of audit events recorded.",
		}, []string{"subject_type", "event_type"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InstanceStartsTotal,
		m.InstanceAdvancesTotal,
		m.InstanceCompletionsTotal,
		m.InstancesActive,
		m.StepDuration,
		m.TasksCreatedTotal,
		m.TasksCompletedTotal,
		m.ApprovalsRequestedTotal,
		m.ApprovalDecisionsTotal,
		m.ApprovalEscalationsTotal,
		m.DefinitionVersionsTotal,
		m.AuditEventsTotal,
	)

	return m
}

// MetricsHandler returns the HTTP handler serving the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordInstanceStart records an instance start.
func (m *Metrics) RecordInstanceStart(definitionID string) {
	m.InstanceStartsTotal.WithLabelValues(definitionID).Inc()
	m.InstancesActive.WithLabelValues(definitionID).Inc()
}

// RecordInstanceAdvance records a step advancement.
func (m *Metrics) RecordInstanceAdvance(definitionID, step string, inStep time.Duration) {
	m.InstanceAdvancesTotal.WithLabelValues(definitionID).Inc()
	m.StepDuration.WithLabelValues(definitionID, step).Observe(inStep.Seconds())
}

// RecordInstanceTerminal records a terminal transition.
func (m *Metrics) RecordInstanceTerminal(definitionID, finalStatus string) {
	m.InstanceCompletionsTotal.WithLabelValues(definitionID, finalStatus).Inc()
	m.InstancesActive.WithLabelValues(definitionID).Dec()
}

// RecordTaskCreated records a task creation.
func (m *Metrics) RecordTaskCreated(definitionID string) {
	m.TasksCreatedTotal.WithLabelValues(definitionID).Inc()
}

// RecordTaskResolved records a task reaching a terminal status.
func (m *Metrics) RecordTaskResolved(definitionID, status string) {
	m.TasksCompletedTotal.WithLabelValues(definitionID, status).Inc()
}

// RecordApprovalRequested records an approval request.
func (m *Metrics) RecordApprovalRequested(definitionID string) {
	m.ApprovalsRequestedTotal.WithLabelValues(definitionID).Inc()
}

// RecordApprovalDecision records an approval decision.
func (m *Metrics) RecordApprovalDecision(definitionID, decision string) {
	m.ApprovalDecisionsTotal.WithLabelValues(definitionID, decision).Inc()
}

// RecordApprovalEscalation records an approval escalation.
func (m *Metrics) RecordApprovalEscalation(definitionID string) {
	m.ApprovalEscalationsTotal.WithLabelValues(definitionID).Inc()
}

// RecordDefinitionVersion records a definition version lifecycle event.
func (m *Metrics) RecordDefinitionVersion(status string) {
	m.DefinitionVersionsTotal.WithLabelValues(status).Inc()
}

// RecordAuditEvent records an appended audit event.
func (m *Metrics) RecordAuditEvent(subjectType, eventType string) {
	m.AuditEventsTotal.WithLabelValues(subjectType, eventType).Inc()
}

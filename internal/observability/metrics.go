package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket definitions.
var operationDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// Metrics holds all Prometheus metric instruments for the workspace.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	RejectionsTotal   *prometheus.CounterVec

	// Entity lifecycle metrics
	TransitionsTotal      *prometheus.CounterVec
	ActivePatientProfiles *prometheus.GaugeVec
	UnresolvedConcerns    *prometheus.GaugeVec

	// Navigation metrics
	GateEvaluationsTotal prometheus.Counter
	NavigationBlocked    *prometheus.CounterVec
	ScenarioSwitches     *prometheus.CounterVec

	// Audit metrics
	AuditEntriesTotal *prometheus.CounterVec

	// Session command metrics
	CommandExecutionsTotal *prometheus.CounterVec
	CommandDuration        *prometheus.HistogramVec
	CommandReplaysTotal    *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// Operations
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_operations_total",
			Help: "Total number of workspace operations.",
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trialscope_operation_duration_seconds",
			Help:    "Workspace operation duration in seconds.",
			Buckets: operationDurationBuckets,
		}, []string{"operation"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_rejections_total",
			Help: "Total number of rejected operations by error code.",
		}, []string{"operation", "code"}),

		// Entity lifecycle
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_transitions_total",
			Help: "Total number of accepted entity state transitions.",
		}, []string{"entity", "to"}),
		ActivePatientProfiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trialscope_active_patient_profiles",
			Help: "Number of patient profiles selected as active.",
		}, []string{"scenario_id"}),
		UnresolvedConcerns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trialscope_unresolved_blocking_concerns",
			Help: "Number of blocking review comments not yet acknowledged.",
		}, []string{"scenario_id"}),

		// Navigation
		GateEvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trialscope_gate_evaluations_total",
			Help: "Total number of step gate evaluations.",
		}),
		NavigationBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_navigation_blocked_total",
			Help: "Total number of navigation attempts to disabled steps.",
		}, []string{"route"}),
		ScenarioSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_scenario_switches_total",
			Help: "Total number of scenario switch requests by outcome.",
		}, []string{"outcome"}),

		// Audit
		AuditEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_audit_entries_total",
			Help: "Total number of audit entries recorded.",
		}, []string{"action"}),

		// Session commands
		CommandExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_command_executions_total",
			Help: "Total number of session command executions.",
		}, []string{"intent", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trialscope_command_duration_seconds",
			Help:    "Session command duration in seconds.",
			Buckets: operationDurationBuckets,
		}, []string{"intent"}),
		CommandReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trialscope_command_replays_total",
			Help: "Total number of session commands answered from the idempotency store.",
		}, []string{"intent"}),
	}

	reg.MustRegister(
		// Operations
		m.OperationsTotal,
		m.OperationDuration,
		m.RejectionsTotal,
		// Entity lifecycle
		m.TransitionsTotal,
		m.ActivePatientProfiles,
		m.UnresolvedConcerns,
		// Navigation
		m.GateEvaluationsTotal,
		m.NavigationBlocked,
		m.ScenarioSwitches,
		// Audit
		m.AuditEntriesTotal,
		// Session commands
		m.CommandExecutionsTotal,
		m.CommandDuration,
		m.CommandReplaysTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordOperation records a workspace operation and, when it failed, the
// rejection code.
func (m *Metrics) RecordOperation(operation, code string, duration time.Duration) {
	status := "ok"
	if code != "" {
		status = "error"
		m.RejectionsTotal.WithLabelValues(operation, code).Inc()
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransition records an accepted entity transition.
func (m *Metrics) RecordTransition(entity, to string) {
	m.TransitionsTotal.WithLabelValues(entity, to).Inc()
}

// SetActivePatientProfiles sets the active profile count for a scenario.
func (m *Metrics) SetActivePatientProfiles(scenarioID string, count int) {
	m.ActivePatientProfiles.WithLabelValues(scenarioID).Set(float64(count))
}

// SetUnresolvedConcerns sets the unresolved blocking comment count for a
// scenario.
func (m *Metrics) SetUnresolvedConcerns(scenarioID string, count int) {
	m.UnresolvedConcerns.WithLabelValues(scenarioID).Set(float64(count))
}

// RecordGateEvaluation records a step gate evaluation.
func (m *Metrics) RecordGateEvaluation() {
	m.GateEvaluationsTotal.Inc()
}

// RecordNavigationBlocked records a navigation attempt to a disabled step.
func (m *Metrics) RecordNavigationBlocked(route string) {
	m.NavigationBlocked.WithLabelValues(route).Inc()
}

// RecordScenarioSwitch records a switch request outcome.
func (m *Metrics) RecordScenarioSwitch(outcome string) {
	m.ScenarioSwitches.WithLabelValues(outcome).Inc()
}

// RecordAuditEntry records an appended audit entry.
func (m *Metrics) RecordAuditEntry(action string) {
	m.AuditEntriesTotal.WithLabelValues(action).Inc()
}

// RecordCommandExecution records session command execution metrics.
func (m *Metrics) RecordCommandExecution(intent, status string, duration time.Duration) {
	m.CommandExecutionsTotal.WithLabelValues(intent, status).Inc()
	m.CommandDuration.WithLabelValues(intent).Observe(duration.Seconds())
}

// RecordCommandReplay records a command answered from the idempotency store.
func (m *Metrics) RecordCommandReplay(intent string) {
	m.CommandReplaysTotal.WithLabelValues(intent).Inc()
}

// WriteTextfile writes every metric gathered from g to path in the Prometheus
// text exposition format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: writing textfile %s: %w", path, err)
	}
	return nil
}

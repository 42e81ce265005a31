package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	// Touch every vector so it shows up in Gather.
	m.RecordOperation("try_set_active", "", time.Millisecond)
	m.RecordOperation("try_set_active", "COUNT_VIOLATION", time.Millisecond)
	m.RecordTransition("review", "under_review")
	m.SetActivePatientProfiles("scn-1", 2)
	m.SetUnresolvedConcerns("scn-1", 1)
	m.RecordGateEvaluation()
	m.RecordNavigationBlocked("site-recommendation")
	m.RecordScenarioSwitch("immediate")
	m.RecordAuditEntry("shortlist.add")
	m.RecordCommandExecution("include", "ok", time.Millisecond)
	m.RecordCommandReplay("include")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"trialscope_operations_total",
		"trialscope_operation_duration_seconds",
		"trialscope_rejections_total",
		"trialscope_transitions_total",
		"trialscope_active_patient_profiles",
		"trialscope_unresolved_blocking_concerns",
		"trialscope_gate_evaluations_total",
		"trialscope_navigation_blocked_total",
		"trialscope_scenario_switches_total",
		"trialscope_audit_entries_total",
		"trialscope_command_executions_total",
		"trialscope_command_duration_seconds",
		"trialscope_command_replays_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordOperation(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordOperation("mark_reviewed", "", 2*time.Millisecond)
	m.RecordOperation("mark_reviewed", "BLOCKING_CONCERNS_UNRESOLVED", time.Millisecond)
	m.RecordOperation("mark_reviewed", "BLOCKING_CONCERNS_UNRESOLVED", time.Millisecond)

	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("mark_reviewed", "ok")); got != 1 {
		t.Errorf("ok operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("mark_reviewed", "error")); got != 2 {
		t.Errorf("failed operations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("mark_reviewed", "BLOCKING_CONCERNS_UNRESOLVED")); got != 2 {
		t.Errorf("rejections = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.OperationDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetActivePatientProfiles("scn-1", 3)
	m.SetActivePatientProfiles("scn-1", 0)
	if got := testutil.ToFloat64(m.ActivePatientProfiles.WithLabelValues("scn-1")); got != 0 {
		t.Errorf("active profiles = %v, want 0", got)
	}

	m.SetUnresolvedConcerns("scn-2", 4)
	if got := testutil.ToFloat64(m.UnresolvedConcerns.WithLabelValues("scn-2")); got != 4 {
		t.Errorf("unresolved concerns = %v, want 4", got)
	}
}

func TestCommandMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCommandExecution("add_note", "ok", time.Millisecond)
	m.RecordCommandReplay("add_note")

	expected := `
# HELP trialscope_command_replays_total Total number of session commands answered from the idempotency store.
# TYPE trialscope_command_replays_total counter
trialscope_command_replays_total{intent="add_note"} 1
`
	if err := testutil.CollectAndCompare(m.CommandReplaysTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("CollectAndCompare() error = %v", err)
	}
	if got := testutil.ToFloat64(m.CommandExecutionsTotal.WithLabelValues("add_note", "ok")); got != 1 {
		t.Errorf("executions = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordGateEvaluation()
	m.RecordScenarioSwitch("pending_confirmation")

	path := filepath.Join(t.TempDir(), "trialscope.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		"trialscope_gate_evaluations_total 1",
		`trialscope_scenario_switches_total{outcome="pending_confirmation"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTextfile_badPath(t *testing.T) {
	_, reg := newTestMetrics(t)
	if err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"), reg); err == nil {
		t.Error("WriteTextfile() into a missing directory should fail")
	}
}

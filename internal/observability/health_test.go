package observability

import (
	"context"
	"errors"
	"testing"
)

type fakeChecker struct {
	err error
}

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestCheckReadiness_allOK(t *testing.T) {
	report := CheckReadiness(context.Background(), ReadinessChecks{
		ScenariosLoaded: func() int { return 2 },
		Store:           fakeChecker{},
		PolicyEngine:    fakeChecker{},
	})

	if !report.Ready() {
		t.Fatalf("report = %+v, want ready", report)
	}
	for _, name := range []string{"scenarios", "store", "policy_engine"} {
		if report.Checks[name].Status != "ok" {
			t.Errorf("check %s = %+v", name, report.Checks[name])
		}
	}
	if report.Version != Version {
		t.Errorf("Version = %q, want %q", report.Version, Version)
	}
}

func TestCheckReadiness_noScenarios(t *testing.T) {
	report := CheckReadiness(context.Background(), ReadinessChecks{
		ScenariosLoaded: func() int { return 0 },
	})
	if report.Ready() {
		t.Fatal("report should not be ready without scenarios")
	}
	if report.Checks["scenarios"].Error == "" {
		t.Error("scenarios check should carry an error message")
	}
	if _, ok := report.Checks["store"]; ok {
		t.Error("optional store check should be skipped when nil")
	}
}

func TestCheckReadiness_failingDependency(t *testing.T) {
	report := CheckReadiness(context.Background(), ReadinessChecks{
		ScenariosLoaded: func() int { return 1 },
		PolicyEngine:    fakeChecker{err: errors.New("no roles loaded")},
	})
	if report.Status != "not_ready" {
		t.Errorf("Status = %q, want not_ready", report.Status)
	}
	if got := report.Checks["policy_engine"].Error; got != "no roles loaded" {
		t.Errorf("policy_engine error = %q", got)
	}
}

package observability

import (
	"context"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// ReadinessReport summarises the startup checks run before a session.
type ReadinessReport struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Commit  string                 `json:"commit"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Ready reports whether every check passed.
func (r ReadinessReport) Ready() bool {
	return r.Status == "ready"
}

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessChecks holds the dependency checkers run at startup.
type ReadinessChecks struct {
	// Required check, always run.
	ScenariosLoaded func() int

	// Optional checks, only run if non-nil.
	Store        HealthChecker
	PolicyEngine HealthChecker
}

const checkTimeout = 2 * time.Second

// CheckReadiness runs all configured checks concurrently.
func CheckReadiness(ctx context.Context, checks ReadinessChecks) ReadinessReport {
	results := make(map[string]CheckResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(name string, result CheckResult) {
		mu.Lock()
		results[name] = result
		mu.Unlock()
	}

	// Required: at least one scenario to work on.
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		if checks.ScenariosLoaded != nil && checks.ScenariosLoaded() > 0 {
			record("scenarios", CheckResult{
				Status:    "ok",
				LatencyMs: time.Since(start).Milliseconds(),
			})
		} else {
			record("scenarios", CheckResult{
				Status:    "error",
				LatencyMs: time.Since(start).Milliseconds(),
				Error:     "no scenarios loaded",
			})
		}
	}()

	// Optional: entity store.
	if checks.Store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record("store", runCheck(ctx, checks.Store))
		}()
	}

	// Optional: capability policy.
	if checks.PolicyEngine != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record("policy_engine", runCheck(ctx, checks.PolicyEngine))
		}()
	}

	wg.Wait()

	status := "ready"
	for _, result := range results {
		if result.Status != "ok" {
			status = "not_ready"
			break
		}
	}

	return ReadinessReport{
		Status:  status,
		Version: Version,
		Commit:  Commit,
		Checks:  results,
	}
}

// runCheck executes a health check with a per-check timeout.
func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CheckResult{
			Status:    "error",
			LatencyMs: latency,
			Error:     err.Error(),
		}
	}
	return CheckResult{
		Status:    "ok",
		LatencyMs: latency,
	}
}

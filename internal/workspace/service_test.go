package workspace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/trialscope/internal/audit"
	"github.com/pitabwire/trialscope/internal/capability"
	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

// testClock is a settable clock shared by the service and its machines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc     *Service
	store   *store.MemoryStore
	log     *audit.MemoryLog
	metrics *observability.Metrics
	clock   *testClock
	admin   *model.RequestContext
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemoryStore(),
		log:     audit.NewMemoryLog(),
		metrics: observability.InitMetrics(prometheus.NewRegistry()),
		clock:   &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		admin:   actor("u-admin", "Dana", "admin"),
	}
	var seq atomic.Int64
	base := []Option{
		WithClock(f.clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		WithMetrics(f.metrics),
	}
	f.svc = NewService(f.store, f.log, append(base, opts...)...)
	return f
}

func actor(subject, name string, roles ...string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID:   subject,
		DisplayName: name,
		Roles:       roles,
		Surface:     model.SurfaceWorkspace,
	}
}

func (f *fixture) scenario(t *testing.T, name string) string {
	t.Helper()
	scn, err := f.svc.CreateScenario(context.Background(), f.admin, name)
	require.NoError(t, err)
	return scn.ID
}

func (f *fixture) patient(t *testing.T, scenarioID, name string) string {
	t.Helper()
	p, err := f.svc.AddProfile(context.Background(), f.admin, scenarioID, model.ProfileKindPatient, "", model.ProfileInput{Name: name})
	require.NoError(t, err)
	return p.ID
}

// readyForReview activates profileID and unlocks Review & Approval.
func (f *fixture) readyForReview(t *testing.T, scenarioID, profileID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scenarioID, []string{profileID}))
	require.NoError(t, f.svc.SetArtifact(ctx, f.admin, scenarioID, model.ArtifactSiteRecommendationsReady, true))
}

func (f *fixture) actions(t *testing.T, scenarioID string) []string {
	t.Helper()
	entries, err := f.svc.ListAudit(context.Background(), scenarioID, audit.Filters{})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func activeIDs(rec store.Record) []string {
	var ids []string
	for _, p := range rec.Profiles {
		if p.IsActiveSelection {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// --- Scenario lifecycle ---

func TestCreateScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scn, err := f.svc.CreateScenario(ctx, f.admin, "Phase II, East Africa")
	require.NoError(t, err)
	require.Equal(t, model.ScenarioStatusDraft, scn.Status)
	require.Equal(t, 1, scn.Version)
	for _, step := range model.WorkflowSteps {
		require.Equal(t, model.StepIncomplete, scn.StepStatusOf(step))
	}

	_, err = f.svc.CreateScenario(ctx, f.admin, "")
	require.True(t, model.IsCode(err, model.ErrValidationError), "got %v", err)

	list, err := f.svc.Scenarios(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestApply_requestContextRequired(t *testing.T) {
	f := newFixture(t)
	scn := f.scenario(t, "A")

	err := f.svc.SetStepStatus(context.Background(), nil, scn, model.StepPatientProfile, model.StepInProgress)
	require.True(t, model.IsCode(err, model.ErrBadRequest), "nil context: %v", err)

	noSurface := &model.RequestContext{SubjectID: "u-1"}
	err = f.svc.SetStepStatus(context.Background(), noSurface, scn, model.StepPatientProfile, model.StepInProgress)
	require.True(t, model.IsCode(err, model.ErrBadRequest), "missing surface: %v", err)
}

func TestApply_rejectedMutationLeavesRecordUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")

	before, err := f.svc.Record(ctx, scn)
	require.NoError(t, err)

	err = f.svc.SetStepStatus(ctx, f.admin, scn, model.StepOptionSnapshot, model.StepComplete)
	require.True(t, model.IsCode(err, model.ErrValidationError), "got %v", err)
	err = f.svc.SetArtifact(ctx, f.admin, scn, "bogus", true)
	require.True(t, model.IsCode(err, model.ErrValidationError), "got %v", err)

	after, err := f.svc.Record(ctx, scn)
	require.NoError(t, err)
	require.Equal(t, before.Scenario.Version, after.Scenario.Version)
	require.Empty(t, f.actions(t, scn))
}

func TestApply_unknownScenario(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SetStepStatus(context.Background(), f.admin, "scn-404", model.StepPatientProfile, model.StepInProgress)
	require.True(t, model.IsCode(err, model.ErrNotFound), "got %v", err)
}

// --- Capabilities ---

func TestCapabilities(t *testing.T) {
	eval, err := capability.NewStaticPolicyEvaluator("../capability/testdata/policies.yaml")
	require.NoError(t, err)
	f := newFixture(t, WithCapabilityResolver(capability.NewResolver(eval, time.Minute)))
	ctx := context.Background()

	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")
	f.readyForReview(t, scn, p)
	require.NoError(t, f.svc.LoadCandidates(ctx, f.admin, scn, []model.SiteCandidate{{SiteID: "s-1", Name: "KNH", Country: "KE"}}))

	coordinator := actor("u-c", "Casey", "coordinator")
	reviewer := actor("u-r", "Robin", "reviewer")
	lead := actor("u-l", "Lee", "sponsor_lead")
	nobody := actor("u-n", "Nico")

	_, err = f.svc.AddToShortlist(ctx, coordinator, scn, "s-1")
	require.NoError(t, err, "coordinator shortlists")

	tests := []struct {
		name string
		call func() error
		ok   bool
	}{
		{"coordinator cannot decide", func() error { return f.svc.Include(ctx, coordinator, scn, "s-1") }, false},
		{"reviewer cannot decide", func() error { return f.svc.Exclude(ctx, reviewer, scn, "s-1") }, false},
		{"lead decides", func() error { return f.svc.Include(ctx, lead, scn, "s-1") }, true},
		{"reviewer cannot edit profiles", func() error { return f.svc.TrySetActive(ctx, reviewer, scn, []string{p}) }, false},
		{"coordinator starts review", func() error { return f.svc.StartReview(ctx, coordinator, scn, p) }, true},
		{"coordinator cannot approve", func() error { return f.svc.MarkReviewed(ctx, coordinator, scn, p) }, false},
		{"reviewer approves", func() error { return f.svc.MarkReviewed(ctx, reviewer, scn, p) }, true},
		{"no roles, no notes", func() error { return f.svc.AddNote(ctx, nobody, scn, "s-1", "hi") }, false},
	}
	for _, tt := range tests {
		err := tt.call()
		if tt.ok {
			require.NoError(t, err, tt.name)
		} else {
			require.True(t, model.IsCode(err, model.ErrForbidden), "%s: got %v", tt.name, err)
		}
	}

	// Forbidden calls leave no audit trail.
	require.Equal(t, []string{
		model.AuditReviewComplete,
		model.AuditReviewStart,
		model.AuditDecisionInclude,
		model.AuditShortlistAdd,
		model.AuditSelectionChange,
	}, f.actions(t, scn))
}

// --- Concurrency ---

func TestTrySetActive_concurrentWritersNeverExceedMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = f.patient(t, scn, fmt.Sprintf("Cohort %d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 24)
	for i := range 24 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- f.svc.TrySetActive(ctx, f.admin, scn, []string{id})
		}(ids[i%len(ids)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			require.True(t, model.IsCode(err, model.ErrCountViolation), "got %v", err)
		}
	}
	rec, err := f.svc.Record(ctx, scn)
	require.NoError(t, err)
	require.Len(t, activeIDs(rec), 3)
}

// --- Metrics ---

func TestMetrics_operationsAndGauges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	var ids []string
	for i := range 4 {
		ids = append(ids, f.patient(t, scn, fmt.Sprintf("Cohort %d", i)))
	}

	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, ids[:3]))
	err := f.svc.TrySetActive(ctx, f.admin, scn, ids[3:])
	require.True(t, model.IsCode(err, model.ErrCountViolation))

	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("try_set_active", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OperationsTotal.WithLabelValues("try_set_active", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RejectionsTotal.WithLabelValues("try_set_active", model.ErrCountViolation)))
	require.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ActivePatientProfiles.WithLabelValues(scn)))
	require.Equal(t, float64(3), testutil.ToFloat64(f.metrics.AuditEntriesTotal.WithLabelValues(model.AuditSelectionChange)))
	require.Equal(t, float64(3), testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues(model.SubjectProfile, "active")))
}

func auditFilter(scenarioID, action string) audit.Filters {
	return audit.Filters{ScenarioID: scenarioID, Action: action}
}

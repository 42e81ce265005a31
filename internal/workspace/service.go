// Package workspace is the operation surface of the feasibility workspace.
//
// Every mutation runs the same pipeline: validate the actor, check its
// capability, take the scenario's writer lock, load a copy of the scenario
// record, apply a pure transition, write the record back with an optimistic
// version check and append the audit entries. Nothing is written when any
// step fails or the transition changes nothing.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/trialscope/internal/audit"
	"github.com/pitabwire/trialscope/internal/decision"
	"github.com/pitabwire/trialscope/internal/gate"
	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/review"
	"github.com/pitabwire/trialscope/internal/scenario"
	"github.com/pitabwire/trialscope/internal/selection"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

// DefaultRoute is where a scenario opens when it has never been visited.
const DefaultRoute = "patient-profile"

// AuditLog records and lists audit entries.
type AuditLog interface {
	audit.Recorder
	List(ctx context.Context, filters audit.Filters) ([]model.AuditEntry, error)
}

// Service applies workspace operations to stored scenarios.
type Service struct {
	store     store.Store
	audit     AuditLog
	guard     *scenario.Guard
	policy    *selection.Policy
	reviews   *review.Machine
	decisions *decision.Machine

	capResolver model.CapabilityResolver
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	newID       func() string

	defaultRoute string
	minActive    int
	maxActive    int

	mu    sync.Mutex
	locks map[string]*sync.Mutex // key: scenario ID
}

// Option configures a Service.
type Option func(*Service)

// WithCapabilityResolver enables capability checks. Without a resolver every
// actor may perform every operation.
func WithCapabilityResolver(r model.CapabilityResolver) Option {
	return func(s *Service) { s.capResolver = r }
}

// WithLogger sets the logger used when no logger is attached to the context.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source for every timestamp the service sets.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how scenario, profile and comment IDs are made.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithSelectionBounds sets the inclusive bounds on active patient profiles.
func WithSelectionBounds(minActive, maxActive int) Option {
	return func(s *Service) {
		s.minActive = minActive
		s.maxActive = maxActive
	}
}

// WithDefaultRoute sets the route a never-visited scenario opens on.
func WithDefaultRoute(route string) Option {
	return func(s *Service) { s.defaultRoute = route }
}

// NewService creates a workspace service over st, recording to log.
func NewService(st store.Store, log AuditLog, opts ...Option) *Service {
	s := &Service{
		store:        st,
		audit:        log,
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.New().String() },
		defaultRoute: DefaultRoute,
		minActive:    selection.DefaultMinActive,
		maxActive:    selection.DefaultMaxActive,
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.guard = scenario.NewGuard(s.defaultRoute, st.Exists)
	s.policy = selection.NewPolicy(s.minActive, s.maxActive)
	s.reviews = review.NewMachine(review.WithClock(s.now), review.WithIDGenerator(s.newID))
	s.decisions = decision.NewMachine(s.now)
	return s
}

// lock takes the writer lock of a scenario and returns its release.
func (s *Service) lock(scenarioID string) func() {
	s.mu.Lock()
	l, ok := s.locks[scenarioID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[scenarioID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// mutation describes one state-changing operation.
type mutation struct {
	op         string
	scenarioID string
	capability string
	attrs      []attribute.KeyValue
	// dirty marks the workspace unsaved when the scenario is active.
	dirty bool
}

// errNoChange is returned by a mutation that leaves the record as it was.
// apply then succeeds without writing, auditing or marking the workspace
// unsaved.
var errNoChange = errors.New("no change")

// apply runs fn against a copy of the scenario record and persists the
// result together with the audit entries fn returns.
func (s *Service) apply(
	ctx context.Context,
	rctx *model.RequestContext,
	m mutation,
	fn func(rec *store.Record) ([]model.AuditEntry, error),
) (err error) {
	started := time.Now()
	if rctx != nil {
		ctx = model.WithRequestContext(ctx, rctx)
	}
	attrs := append([]attribute.KeyValue{observability.AttrScenarioID.String(m.scenarioID)}, m.attrs...)
	ctx, span := observability.StartSpan(ctx, "workspace."+m.op, attrs...)
	defer func() {
		observability.EndSpanWithError(span, err)
		s.finish(ctx, m.op, m.scenarioID, started, err)
	}()

	if err = s.authorize(rctx, m.capability); err != nil {
		return err
	}

	unlock := s.lock(m.scenarioID)
	defer unlock()

	rec, err := s.store.Get(ctx, m.scenarioID)
	if err != nil {
		return err
	}

	entries, err := fn(&rec)
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	if err = s.store.Update(ctx, rec); err != nil {
		return err
	}

	if err = s.recordAll(ctx, rctx, m.scenarioID, entries); err != nil {
		return err
	}

	if m.dirty && s.guard.Active() == m.scenarioID {
		s.guard.MarkUnsaved()
	}
	s.observeRecord(rec)
	return nil
}

// requireStep fails with STEP_DISABLED unless step is enabled and, for
// every step after the patient profile, the selection banner is clear.
func (s *Service) requireStep(rec *store.Record, step model.StepName) error {
	if err := gate.CheckNavigable(gate.SnapshotOf(rec.Scenario), gate.RouteOf(step)); err != nil {
		return err
	}
	if banner := s.policy.Banner(rec.Profiles); banner.Blocking && step != model.StepPatientProfile {
		return model.NewStepDisabledError(string(step), banner.Message)
	}
	return nil
}

// authorize validates the actor and checks that it holds capability.
func (s *Service) authorize(rctx *model.RequestContext, capability string) error {
	if rctx == nil {
		return model.NewBadRequestError("request context is required")
	}
	if err := rctx.Validate(); err != nil {
		return model.NewBadRequestError(err.Error())
	}
	if s.capResolver == nil || capability == "" {
		return nil
	}
	caps, err := s.capResolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	if !caps.Has(capability) {
		return model.NewForbiddenError(
			fmt.Sprintf("%s lacks capability %q", rctx.Actor(), capability),
		)
	}
	return nil
}

// recordAll stamps and appends audit entries.
func (s *Service) recordAll(ctx context.Context, rctx *model.RequestContext, scenarioID string, entries []model.AuditEntry) error {
	now := s.now()
	for _, e := range entries {
		if e.ScenarioID == "" {
			e.ScenarioID = scenarioID
		}
		e.Actor = rctx.Actor()
		e.Surface = rctx.Surface
		e.Timestamp = now
		if err := s.audit.Record(ctx, e); err != nil {
			return fmt.Errorf("record audit entry %s: %w", e.Action, err)
		}
		if s.metrics != nil {
			s.metrics.RecordAuditEntry(e.Action)
			if to, ok := e.Detail["to"].(string); ok {
				s.metrics.RecordTransition(e.SubjectType, to)
			}
		}
	}
	return nil
}

// finish logs the outcome of an operation and records its metrics.
func (s *Service) finish(ctx context.Context, op, scenarioID string, started time.Time, err error) {
	logger := observability.ScenarioLogger(ctx, s.logger, scenarioID)
	code := ""
	if err != nil {
		code = model.CodeOf(err)
		if ce := logger.Check(observability.LevelFor(err), op+" rejected"); ce != nil {
			ce.Write(zap.String("operation", op), zap.String("code", code), zap.Error(err))
		}
	} else {
		logger.Info(op+" applied", zap.String("operation", op))
	}
	if s.metrics != nil {
		s.metrics.RecordOperation(op, code, time.Since(started))
	}
}

// observeRecord refreshes the per-scenario gauges.
func (s *Service) observeRecord(rec store.Record) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetActivePatientProfiles(rec.Scenario.ID, selection.ActiveCount(rec.Profiles))
	unresolved := 0
	for _, item := range rec.Reviews {
		unresolved += len(review.Unresolved(item))
	}
	s.metrics.SetUnresolvedConcerns(rec.Scenario.ID, unresolved)
}

// --- Reads ---

// Record returns a copy of a scenario with all of its entities.
func (s *Service) Record(ctx context.Context, scenarioID string) (store.Record, error) {
	return s.store.Get(ctx, scenarioID)
}

// Scenarios lists every scenario, oldest first.
func (s *Service) Scenarios(ctx context.Context) ([]model.Scenario, error) {
	return s.store.List(ctx)
}

// ListAudit returns audit entries newest first. A non-empty scenarioID
// overrides the filter's scenario.
func (s *Service) ListAudit(ctx context.Context, scenarioID string, filters audit.Filters) ([]model.AuditEntry, error) {
	if scenarioID != "" {
		filters.ScenarioID = scenarioID
	}
	return s.audit.List(ctx, filters)
}

// --- Scenario lifecycle ---

// CreateScenario creates a draft scenario with every step incomplete.
func (s *Service) CreateScenario(ctx context.Context, rctx *model.RequestContext, name string) (model.Scenario, error) {
	if err := s.authorize(rctx, model.CapWorkspaceEdit); err != nil {
		return model.Scenario{}, err
	}
	if name == "" {
		return model.Scenario{}, model.NewValidationError([]model.FieldError{
			{Field: "name", Code: "REQUIRED", Message: "Scenario name is required"},
		})
	}
	now := s.now()
	rec := store.NewRecord(model.Scenario{ID: s.newID(), Name: name, CreatedAt: now})
	if err := s.store.Create(ctx, rec); err != nil {
		return model.Scenario{}, err
	}
	created, err := s.store.Get(ctx, rec.Scenario.ID)
	if err != nil {
		return model.Scenario{}, err
	}
	observability.RequestLogger(model.WithRequestContext(ctx, rctx), s.logger).Info("scenario created",
		zap.String("scenario_id", created.Scenario.ID),
		zap.String("name", name),
	)
	return created.Scenario, nil
}

// SetStepStatus sets the completion status of a workflow step.
func (s *Service) SetStepStatus(ctx context.Context, rctx *model.RequestContext, scenarioID string, step model.StepName, status model.StepStatus) error {
	return s.apply(ctx, rctx, mutation{op: "set_step_status", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			return nil, rec.SetStepStatus(step, status)
		})
}

// SetArtifact sets a named cross-step artifact flag.
func (s *Service) SetArtifact(ctx context.Context, rctx *model.RequestContext, scenarioID, name string, value bool) error {
	return s.apply(ctx, rctx, mutation{op: "set_artifact", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			return nil, rec.SetArtifact(name, value)
		})
}

package workspace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/trialscope/internal/gate"
	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/scenario"
	"github.com/pitabwire/trialscope/internal/selection"
	"github.com/pitabwire/trialscope/model"
)

// GateState is the navigation state of a scenario: the five workflow steps,
// the read-only outputs and the active-selection banner.
type GateState struct {
	ScenarioID string                 `json:"scenario_id"`
	Steps      []model.StepDescriptor `json:"steps"`
	Outputs    []model.StepDescriptor `json:"outputs"`
	Banner     selection.Banner       `json:"banner"`
}

// StepGates evaluates the step gates of a scenario from its current state.
func (s *Service) StepGates(ctx context.Context, scenarioID string) (GateState, error) {
	rec, err := s.store.Get(ctx, scenarioID)
	if err != nil {
		return GateState{}, err
	}
	snap := gate.SnapshotOf(rec.Scenario)
	state := GateState{
		ScenarioID: scenarioID,
		Steps:      gate.Evaluate(snap),
		Outputs:    gate.EvaluateOutputs(snap),
		Banner:     s.policy.Banner(rec.Profiles),
	}
	if s.metrics != nil {
		s.metrics.RecordGateEvaluation()
	}

	enabled := 0
	for _, d := range state.Steps {
		if d.Enabled {
			enabled++
		}
	}
	observability.ScenarioLogger(ctx, s.logger, scenarioID).Debug("step gates evaluated",
		zap.Int("enabled_steps", enabled),
		zap.Bool("banner_blocking", state.Banner.Blocking),
	)
	return state, nil
}

// Navigate opens a workflow step or output by route. Disabled steps are
// refused with STEP_DISABLED. While the active-selection banner is blocking
// only the patient profile step can be opened. A successful navigation in
// the active scenario is remembered for resume.
func (s *Service) Navigate(ctx context.Context, rctx *model.RequestContext, scenarioID, route string) (model.StepDescriptor, error) {
	var opened model.StepDescriptor
	err := s.run(ctx, rctx, "navigate", scenarioID, []attribute.KeyValue{observability.AttrRoute.String(route)},
		func(ctx context.Context) error {
			rec, err := s.store.Get(ctx, scenarioID)
			if err != nil {
				return err
			}
			snap := gate.SnapshotOf(rec.Scenario)
			if s.metrics != nil {
				s.metrics.RecordGateEvaluation()
			}
			if err := gate.CheckNavigable(snap, route); err != nil {
				if model.IsCode(err, model.ErrStepDisabled) {
					s.navigationBlocked(route)
				}
				return err
			}
			d, _ := gate.Lookup(snap, route)
			if banner := s.policy.Banner(rec.Profiles); banner.Blocking && d.Step != model.StepPatientProfile {
				s.navigationBlocked(route)
				return model.NewStepDisabledError(string(d.Step), banner.Message)
			}

			if s.guard.Active() == scenarioID {
				s.guard.RecordRoute(route)
			}
			opened = d
			return nil
		})
	return opened, err
}

func (s *Service) navigationBlocked(route string) {
	if s.metrics != nil {
		s.metrics.RecordNavigationBlocked(route)
	}
}

// --- Scenario switching ---

// RequestSwitch asks to make scenarioID the active scenario. With unsaved
// changes the switch waits for ConfirmSwitch or CancelSwitch.
func (s *Service) RequestSwitch(ctx context.Context, rctx *model.RequestContext, scenarioID string) (scenario.SwitchOutcome, error) {
	var outcome scenario.SwitchOutcome
	err := s.run(ctx, rctx, "request_switch", scenarioID, nil, func(ctx context.Context) error {
		from := s.guard.Active()
		var err error
		outcome, err = s.guard.RequestSwitch(scenarioID)
		if err != nil {
			return err
		}
		s.switchObserved(string(outcome))
		if outcome != scenario.SwitchImmediate || from == scenarioID {
			return nil
		}
		return s.switched(ctx, rctx, from, scenarioID)
	})
	return outcome, err
}

// ConfirmSwitch performs the pending switch, discarding unsaved changes, and
// returns the newly active scenario ID.
func (s *Service) ConfirmSwitch(ctx context.Context, rctx *model.RequestContext) (string, error) {
	from := s.guard.Active()
	var active string
	err := s.run(ctx, rctx, "confirm_switch", from, nil, func(ctx context.Context) error {
		var err error
		active, err = s.guard.ConfirmSwitch()
		if err != nil {
			return err
		}
		s.switchObserved("confirmed")
		return s.switched(ctx, rctx, from, active)
	})
	return active, err
}

// CancelSwitch drops the pending switch. The active scenario keeps its
// unsaved changes.
func (s *Service) CancelSwitch(ctx context.Context, rctx *model.RequestContext) error {
	return s.run(ctx, rctx, "cancel_switch", s.guard.Active(), nil, func(context.Context) error {
		if err := s.guard.CancelSwitch(); err != nil {
			return err
		}
		s.switchObserved("cancelled")
		return nil
	})
}

// switched audits a completed change of the active scenario.
func (s *Service) switched(ctx context.Context, rctx *model.RequestContext, from, to string) error {
	observability.RequestLogger(ctx, s.logger).Info("active scenario switched",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("route", s.guard.ResumeRoute(to)),
	)
	return s.recordAll(ctx, rctx, to, []model.AuditEntry{{
		Action:      model.AuditScenarioSwitch,
		SubjectType: model.SubjectScenario,
		SubjectID:   to,
		Detail:      map[string]any{"from_scenario": from, "route": s.guard.ResumeRoute(to)},
	}})
}

func (s *Service) switchObserved(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordScenarioSwitch(outcome)
	}
}

// MarkUnsaved flags the active scenario as having unsaved changes.
func (s *Service) MarkUnsaved() {
	s.guard.MarkUnsaved()
}

// Save clears the unsaved flag of the active scenario.
func (s *Service) Save(ctx context.Context, rctx *model.RequestContext) error {
	return s.run(ctx, rctx, "save", s.guard.Active(), nil, func(context.Context) error {
		if s.guard.Active() == "" {
			return model.NewInvalidTransitionError("no scenario is active")
		}
		s.guard.MarkSaved()
		return nil
	})
}

// SwitchState returns the active scenario, any pending switch, the unsaved
// flag and the route the active scenario resumes on.
func (s *Service) SwitchState() scenario.State {
	return s.guard.State()
}

// run wraps an operation that does not write a scenario record with the
// same actor validation, tracing, logging and metrics as apply.
func (s *Service) run(
	ctx context.Context,
	rctx *model.RequestContext,
	op, scenarioID string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context) error,
) (err error) {
	started := time.Now()
	if rctx != nil {
		ctx = model.WithRequestContext(ctx, rctx)
	}
	attrs = append([]attribute.KeyValue{observability.AttrScenarioID.String(scenarioID)}, attrs...)
	ctx, span := observability.StartSpan(ctx, "workspace."+op, attrs...)
	defer func() {
		observability.EndSpanWithError(span, err)
		s.finish(ctx, op, scenarioID, started, err)
	}()

	if err = s.authorize(rctx, ""); err != nil {
		return err
	}
	return fn(ctx)
}

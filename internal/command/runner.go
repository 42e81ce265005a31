package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/workspace"
	"github.com/pitabwire/trialscope/model"
)

// Outcome statuses.
const (
	StatusOK            = "ok"
	StatusExpectedError = "expected_error"
	StatusFailed        = "failed"
)

// DefaultIdempotencyTTL is how long a command outcome is kept for replay
// when no TTL is configured.
const DefaultIdempotencyTTL = 24 * time.Hour

// Outcome is the result of one command.
type Outcome struct {
	Index      int    `json:"index"`
	Intent     string `json:"intent"`
	Actor      string `json:"actor"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	ID         string `json:"id,omitempty"`
	Result     any    `json:"result,omitempty"`
	Replayed   bool   `json:"replayed,omitempty"`
}

// Report collects the outcomes of a script run.
type Report struct {
	Script   string    `json:"script"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failed returns the outcomes with status failed.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Observer receives lifecycle events from command execution.
type Observer interface {
	OnCommandExecuted(ctx context.Context, event Event)
}

// Event describes the outcome of a command execution.
type Event struct {
	Intent     string        `json:"intent"`
	SubjectID  string        `json:"subject_id"`
	ScenarioID string        `json:"scenario_id"`
	Status     string        `json:"status"`
	Code       string        `json:"code,omitempty"`
	Replayed   bool          `json:"replayed"`
	Duration   time.Duration `json:"duration"`
}

// Runner replays session scripts against a workspace service.
type Runner struct {
	svc          *workspace.Service
	idempotency  IdempotencyStore
	ttl          time.Duration
	observers    []Observer
	logger       *zap.Logger
	stopOnError  bool
	defaultActor ActorSpec
}

// RunnerOption configures optional dependencies.
type RunnerOption func(*Runner)

// WithIdempotencyStore sets the idempotency store and how long outcomes are
// kept. A non-positive ttl uses DefaultIdempotencyTTL.
func WithIdempotencyStore(store IdempotencyStore, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.idempotency = store
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithObserver adds a command observer.
func WithObserver(obs Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, obs) }
}

// WithLogger sets the runner's logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithStopOnError stops a run at the first failed command.
func WithStopOnError(stop bool) RunnerOption {
	return func(r *Runner) { r.stopOnError = stop }
}

// WithDefaultActor sets the actor for commands that don't name one.
func WithDefaultActor(a ActorSpec) RunnerOption {
	return func(r *Runner) { r.defaultActor = a }
}

// NewRunner creates a Runner over svc.
func NewRunner(svc *workspace.Service, opts ...RunnerOption) *Runner {
	r := &Runner{
		svc:    svc,
		ttl:    DefaultIdempotencyTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// session is the state carried between the commands of one run.
type session struct {
	script  *Script
	refs    *Resolver
	current string
}

// Run executes every command of script in order. Commands that fail are
// reported in the outcome list; the run only stops early with
// WithStopOnError, in which case the error names the failed command.
func (r *Runner) Run(ctx context.Context, script *Script) (Report, error) {
	report := Report{Script: script.Name}
	s := &session{script: script, refs: &Resolver{}}

	r.logger.Info("session started",
		zap.String("script", script.Name),
		zap.Int("commands", len(script.Commands)),
		zap.String("checksum", script.Checksum),
	)
	for i, cmd := range script.Commands {
		out := r.execute(ctx, s, i, cmd)
		report.Outcomes = append(report.Outcomes, out)
		if out.Status == StatusFailed && r.stopOnError {
			return report, fmt.Errorf("command %d (%s) failed: %s", i, cmd.Intent, out.Message)
		}
	}
	r.logger.Info("session finished",
		zap.String("script", script.Name),
		zap.Int("failed", len(report.Failed())),
	)
	return report, nil
}

// execute runs the command pipeline for one command.
func (r *Runner) execute(ctx context.Context, s *session, index int, cmd Command) (out Outcome) {
	start := time.Now()
	out = Outcome{Index: index, Intent: cmd.Intent}

	ctx, span := observability.StartSpan(ctx, "command."+cmd.Intent,
		observability.AttrIntent.String(cmd.Intent),
	)
	var err error
	defer func() {
		observability.EndSpanWithError(span, err)
		r.logOutcome(ctx, out, err)
	}()

	// Step 1: Lookup handler.
	h, ok := handlers[cmd.Intent]
	if !ok {
		err = model.NewBadRequestError(fmt.Sprintf("unknown intent %q", cmd.Intent))
		return r.finish(ctx, cmd, out, nil, err, start)
	}

	// Step 2: Resolve actor.
	actor := r.defaultActor
	if cmd.Actor != "" {
		actor, ok = s.script.Actors[cmd.Actor]
		if !ok {
			err = model.NewBadRequestError(fmt.Sprintf("unknown actor %q", cmd.Actor))
			return r.finish(ctx, cmd, out, nil, err, start)
		}
	}
	rctx := actor.RequestContext()
	out.Actor = rctx.Actor()
	span.SetAttributes(observability.AttrSubjectID.String(rctx.SubjectID))

	// Step 3: Check idempotency.
	var idemKey, hash string
	if cmd.IdempotencyKey != "" && r.idempotency != nil {
		idemKey = FormatIdempotencyKey(cmd.Intent, cmd.IdempotencyKey)
		hash = hashCommand(cmd)
		cached, found, cerr := r.idempotency.Check(ctx, idemKey, hash)
		if cerr != nil {
			err = cerr
			return r.finish(ctx, cmd, out, rctx, err, start)
		}
		if found && cached != nil {
			replay := *cached
			replay.Index = index
			replay.Replayed = true
			span.SetAttributes(observability.AttrReplayed.Bool(true))
			s.refs.Save(cmd.SaveAs, replay.ID)
			r.notifyObservers(ctx, rctx, replay, time.Since(start))
			return replay
		}
	}

	// Step 4: Resolve the target scenario.
	s.refs.Context = rctx
	c := &call{svc: r.svc, rctx: rctx, cmd: cmd, scenario: s.current, refs: s.refs}
	if cmd.Scenario != "" {
		c.scenario, err = s.refs.Resolve(cmd.Scenario)
		if err != nil {
			err = model.NewBadRequestError(err.Error())
			return r.finish(ctx, cmd, out, rctx, err, start)
		}
	}
	if h.scenario && c.scenario == "" {
		err = model.NewBadRequestError("no scenario named and none selected")
		return r.finish(ctx, cmd, out, rctx, err, start)
	}
	out.ScenarioID = c.scenario
	if c.scenario != "" {
		span.SetAttributes(observability.AttrScenarioID.String(c.scenario))
	}

	// Step 5: Invoke the workspace.
	result, id, err := h.fn(ctx, c)
	if err == nil {
		out.Result = result
		out.ID = id
		s.refs.Save(cmd.SaveAs, id)
		if h.selects && id != "" {
			s.current = id
			out.ScenarioID = id
		}
	}
	out = r.finish(ctx, cmd, out, rctx, err, start)

	// Step 3 (continued): Store the outcome for replay.
	if idemKey != "" && out.Status != StatusFailed {
		if serr := r.idempotency.Store(ctx, idemKey, hash, out, r.ttl); serr != nil {
			r.logger.Warn("idempotency store failed", zap.String("key", idemKey), zap.Error(serr))
		}
	}
	return out
}

// finish classifies err against the command's expectation and notifies the
// observers.
func (r *Runner) finish(ctx context.Context, cmd Command, out Outcome, rctx *model.RequestContext, err error, start time.Time) Outcome {
	switch {
	case err != nil:
		out.Code = model.CodeOf(err)
		out.Message = err.Error()
		out.Status = StatusFailed
		if cmd.ExpectError != "" && cmd.ExpectError == out.Code {
			out.Status = StatusExpectedError
		}
	case cmd.ExpectError != "":
		out.Status = StatusFailed
		out.Message = fmt.Sprintf("expected %s, command succeeded", cmd.ExpectError)
	default:
		out.Status = StatusOK
	}
	r.notifyObservers(ctx, rctx, out, time.Since(start))
	return out
}

// notifyObservers sends an Event to all registered observers.
func (r *Runner) notifyObservers(ctx context.Context, rctx *model.RequestContext, out Outcome, duration time.Duration) {
	if len(r.observers) == 0 {
		return
	}
	event := Event{
		Intent:     out.Intent,
		ScenarioID: out.ScenarioID,
		Status:     out.Status,
		Code:       out.Code,
		Replayed:   out.Replayed,
		Duration:   duration,
	}
	if rctx != nil {
		event.SubjectID = rctx.SubjectID
	}
	for _, obs := range r.observers {
		obs.OnCommandExecuted(ctx, event)
	}
}

func (r *Runner) logOutcome(ctx context.Context, out Outcome, err error) {
	logger := observability.ScenarioLogger(ctx, r.logger, out.ScenarioID)
	fields := []zap.Field{
		zap.Int("index", out.Index),
		zap.String("intent", out.Intent),
		zap.String("status", out.Status),
		zap.Bool("replayed", out.Replayed),
	}
	if out.Status != StatusFailed {
		logger.Debug("command executed", fields...)
		return
	}
	level := observability.LevelFor(err)
	if err == nil {
		level = zap.WarnLevel
	}
	if ce := logger.Check(level, "command failed"); ce != nil {
		ce.Write(append(fields, zap.String("code", out.Code), zap.String("message", out.Message))...)
	}
}

// hashCommand computes a SHA-256 hash of the command for idempotency
// comparison. The idempotency key itself is excluded.
func hashCommand(cmd Command) string {
	data, _ := json.Marshal(cmd)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

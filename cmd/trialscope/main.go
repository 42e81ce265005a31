// Package main is the entry point for the trialscope session runner.
// It wires the workspace together, seeds it, replays a session script and
// prints the resulting gate states and audit log.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/trialscope/internal/audit"
	"github.com/pitabwire/trialscope/internal/capability"
	"github.com/pitabwire/trialscope/internal/command"
	"github.com/pitabwire/trialscope/internal/config"
	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/seed"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/internal/workspace"
	"github.com/pitabwire/trialscope/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

// output is what a run prints on stdout.
type output struct {
	Readiness observability.ReadinessReport `json:"readiness"`
	Session   command.Report                `json:"session"`
	Scenarios []scenarioState               `json:"scenarios"`
	Audit     []model.AuditEntry            `json:"audit"`
}

type scenarioState struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Gates workspace.GateState `json:"gates"`
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	sessionPath := flag.String("session", "", "session script to replay (overrides session.file)")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	if *sessionPath != "" {
		cfg.Session.File = *sessionPath
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "trialscope", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
	}()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		metrics = observability.InitMetrics(registry)
	}

	// Step 4: Initialize capability resolver (optional).
	var svcOpts []workspace.Option
	var policy *capability.StaticPolicyEvaluator
	if cfg.Capability.Enabled {
		policy, err = capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
		if err != nil {
			logger.Error("capability policy load failed", zap.Error(err))
			return 1
		}
		svcOpts = append(svcOpts, workspace.WithCapabilityResolver(capability.NewResolver(policy, cfg.Capability.Cache.TTL)))
	}

	// Step 5: Load, verify and validate seed fixtures.
	st := store.NewMemoryStore()
	if cfg.Seed.File != "" {
		if err := loadSeed(ctx, cfg, st, logger); err != nil {
			logger.Error("seed loading failed", zap.Error(err))
			return 1
		}
	}

	// Step 6: Build the workspace service.
	log := audit.NewMemoryLog()
	svcOpts = append(svcOpts,
		workspace.WithLogger(logger),
		workspace.WithSelectionBounds(cfg.Workspace.MinActiveProfiles, cfg.Workspace.MaxActiveProfiles),
		workspace.WithDefaultRoute(cfg.Workspace.DefaultRoute),
	)
	if metrics != nil {
		svcOpts = append(svcOpts, workspace.WithMetrics(metrics))
	}
	svc := workspace.NewService(st, log, svcOpts...)

	// Step 7: Check readiness.
	checks := observability.ReadinessChecks{
		ScenariosLoaded: func() int {
			scenarios, _ := svc.Scenarios(ctx)
			return len(scenarios)
		},
		Store: st,
	}
	if policy != nil {
		checks.PolicyEngine = policy
	}
	readiness := observability.CheckReadiness(ctx, checks)
	logger.Info("readiness checked", zap.String("status", readiness.Status))

	// Step 8: Replay the session script.
	var report command.Report
	failed := 0
	if cfg.Session.File != "" {
		script, err := command.LoadScript(cfg.Session.File)
		if err != nil {
			logger.Error("session script load failed", zap.Error(err))
			return 1
		}
		runOpts := []command.RunnerOption{
			command.WithIdempotencyStore(command.NewMemoryIdempotencyStore(), cfg.Session.IdempotencyTTL),
			command.WithLogger(logger),
			command.WithStopOnError(cfg.Session.StopOnError),
			command.WithDefaultActor(command.ActorSpec{
				SubjectID:   cfg.Workspace.Actor.SubjectID,
				DisplayName: cfg.Workspace.Actor.DisplayName,
				Roles:       cfg.Workspace.Actor.Roles,
			}),
		}
		if metrics != nil {
			runOpts = append(runOpts, command.WithObserver(command.NewMetricsObserver(metrics)))
		}
		report, err = command.NewRunner(svc, runOpts...).Run(ctx, script)
		if err != nil {
			logger.Warn("session stopped", zap.Error(err))
		}
		failed = len(report.Failed())
	} else if !readiness.Ready() {
		logger.Warn("nothing to run: no session script and no seeded scenarios")
	}

	// Step 9: Print gate states and the audit log.
	out, err := collect(ctx, svc, readiness, report)
	if err != nil {
		logger.Error("collecting results failed", zap.Error(err))
		return 1
	}
	if err := writeJSON(os.Stdout, out); err != nil {
		logger.Error("writing results failed", zap.Error(err))
		return 1
	}

	// Step 10: Export metrics.
	if registry != nil && cfg.Observability.Metrics.TextfilePath != "" {
		if err := observability.WriteTextfile(cfg.Observability.Metrics.TextfilePath, registry); err != nil {
			logger.Error("metrics export failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("run complete",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("commands", len(report.Outcomes)),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return 2
	}
	return 0
}

// loadSeed loads the configured seed fixtures into st. A checksum mismatch
// is fatal only with strict checksums.
func loadSeed(ctx context.Context, cfg *config.Config, st store.Store, logger *zap.Logger) error {
	files, err := seed.NewLoader().LoadAll([]string{cfg.Seed.File})
	if err != nil {
		return err
	}

	if err := seed.VerifyChecksum(files, cfg.Seed.Checksum); err != nil {
		if cfg.Seed.StrictChecksums {
			return err
		}
		logger.Warn("seed checksum mismatch ignored", zap.Error(err))
	}

	if verrs := seed.NewValidator(cfg.Workspace.MaxActiveProfiles).Validate(files); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("seed validation error", zap.String("error", ve.Error()), zap.String("code", ve.Code))
		}
		return fmt.Errorf("seed validation failed with %d errors", len(verrs))
	}

	n, err := seed.Apply(ctx, st, files, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("seed loaded",
		zap.Int("files", len(files)),
		zap.Int("scenarios", n),
		zap.String("checksum", seed.Checksum(files)),
	)
	return nil
}

func collect(ctx context.Context, svc *workspace.Service, readiness observability.ReadinessReport, report command.Report) (output, error) {
	out := output{Readiness: readiness, Session: report}

	scenarios, err := svc.Scenarios(ctx)
	if err != nil {
		return out, err
	}
	for _, scn := range scenarios {
		gates, err := svc.StepGates(ctx, scn.ID)
		if err != nil {
			return out, fmt.Errorf("gates of %s: %w", scn.ID, err)
		}
		out.Scenarios = append(out.Scenarios, scenarioState{ID: scn.ID, Name: scn.Name, Gates: gates})
	}

	out.Audit, err = svc.ListAudit(ctx, "", audit.Filters{})
	if err != nil {
		return out, err
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

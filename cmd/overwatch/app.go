package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mercator-hq/overwatch/pkg/agent/orchestrator"
	"mercator-hq/overwatch/pkg/agent/planner"
	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/config"
	"mercator-hq/overwatch/pkg/evidence"
	"mercator-hq/overwatch/pkg/evidence/recorder"
	"mercator-hq/overwatch/pkg/evidence/storage"
	"mercator-hq/overwatch/pkg/policy/guardrail"
	"mercator-hq/overwatch/pkg/policy/store"
	"mercator-hq/overwatch/pkg/telemetry/logging"
	"mercator-hq/overwatch/pkg/telemetry/metrics"
	"mercator-hq/overwatch/pkg/telemetry/tracing"
	"mercator-hq/overwatch/pkg/tools"
)

// builtinPolicyName names the policy used when no policy file is configured.
const builtinPolicyName = "builtin"

// builtinPolicy enables every built-in detection rule except tone.
var builtinPolicy = []byte(`policy:
  name: default
  version: 1.0.0
  checks: [pii, credentials, prompt_injection]
  fail_action: block
`)

// app holds the components wired from one configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	policies *store.Store
	guard    *guardrail.Engine
	registry *tools.Registry
	recorder *recorder.Recorder
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	orch     *orchestrator.Orchestrator
}

// newApp wires every component from cfg. Logs go to logOut.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}

	policies, guard, err := newGuardrails(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	lookup, err := tools.NewDataLookup(nil)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewRegistry(lookup)
	if err != nil {
		return nil, err
	}

	sink, err := openAuditSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	recCfg := &recorder.Config{
		HistorySize:    cfg.Audit.HistorySize,
		WriteTimeout:   cfg.Audit.WriteTimeout,
		MaxFieldLength: cfg.Audit.MaxFieldLength,
	}
	if cfg.Audit.RedactPayloads {
		recCfg.Redact = guard.Redact
	}
	rec := recorder.New(sink, recCfg, logger.With("component", "evidence.recorder"))

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	collector.ObservePolicyStore(policies)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}

	p := planner.New(
		planner.WithLookupTool(cfg.Agent.LookupTool),
		planner.WithLookupKeywords(cfg.Agent.LookupKeywords...),
	)
	orch, err := orchestrator.New(registry, guard, rec,
		&orchestrator.Config{MaxSteps: cfg.Agent.MaxSteps, StepTimeout: cfg.Agent.StepTimeout},
		orchestrator.WithLogger(logger.With("component", "orchestrator")),
		orchestrator.WithPlanner(p),
		orchestrator.WithPolicyStore(policies),
		orchestrator.WithMetrics(collector),
		orchestrator.WithTracer(tracer),
	)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		policies: policies,
		guard:    guard,
		registry: registry,
		recorder: rec,
		metrics:  collector,
		tracer:   tracer,
		orch:     orch,
	}, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, w))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.With("environment", cfg.Environment), nil
}

// newGuardrails loads the policy store and builds the guardrail engine with
// the configured custom checks. In strict mode the store rejects checks that
// neither the built-in nor the custom rules define.
func newGuardrails(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, *guardrail.Engine, error) {
	rules, err := customRules(cfg.Guardrails.CustomChecks)
	if err != nil {
		return nil, nil, err
	}

	var storeOpts []store.Option
	if cfg.Policy.Strict {
		storeOpts = append(storeOpts, store.WithKnownChecks(knownChecks(rules)))
	}
	src, err := policySource(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	policies, err := store.New(ctx, src, logger.With("component", "policy.store"), storeOpts...)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []guardrail.Option{guardrail.WithLogger(logger.With("component", "guardrail"))}
	for _, r := range rules {
		engineOpts = append(engineOpts, guardrail.WithRule(r))
	}
	guard, err := guardrail.NewEngine(policies, toolAccess(cfg.Guardrails.Tools), engineOpts...)
	if err != nil {
		return nil, nil, err
	}
	return policies, guard, nil
}

// openAuditSink opens the JSONL log cfg names, or returns nil to keep
// records in memory only.
func openAuditSink(cfg *config.Config, logger *slog.Logger) (evidence.Sink, error) {
	if cfg.Audit.Path == "" {
		return nil, nil
	}
	return storage.OpenJSONL(cfg.Audit.Path, logger.With("component", "evidence.storage"))
}

// Close flushes metrics, shuts the tracer down and closes the audit sink.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if path := a.cfg.Telemetry.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	if err := a.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}
	return errors.Join(errs...)
}

func policySource(cfg *config.Config, logger *slog.Logger) (store.Source, error) {
	if git := cfg.Policy.Git; git.Repository != "" {
		src, err := store.NewGitSource(store.GitConfig{
			Repository:       git.Repository,
			Branch:           git.Branch,
			Path:             git.Path,
			LocalPath:        git.LocalPath,
			AuthType:         git.Auth.Type,
			Token:            git.Auth.Token,
			SSHKeyPath:       git.Auth.SSHKeyPath,
			SSHKeyPassphrase: git.Auth.SSHKeyPassphrase,
			Timeout:          git.Timeout,
		}, logger.With("component", "policy.git"))
		if err != nil {
			return nil, cli.NewConfigError("policy.git", err.Error())
		}
		return src, nil
	}
	if cfg.Policy.FilePath == "" {
		return store.NewMemorySource(builtinPolicyName, builtinPolicy), nil
	}
	return store.NewFileSource(cfg.Policy.FilePath, logger.With("component", "policy.source")), nil
}

func customRules(checks []config.CustomCheckConfig) ([]*guardrail.Rule, error) {
	rules := make([]*guardrail.Rule, 0, len(checks))
	for _, c := range checks {
		r, err := guardrail.NewRule(c.ID, c.Description, c.Patterns...)
		if err != nil {
			return nil, fmt.Errorf("custom check %q: %w", c.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// knownChecks lists the built-in rule ids plus the custom ones.
func knownChecks(custom []*guardrail.Rule) []string {
	known := guardrail.BuiltinChecks()
	for _, r := range custom {
		known = append(known, r.ID)
	}
	return known
}

func toolAccess(cfg map[string]config.ToolAccessConfig) guardrail.ToolAccess {
	access := make(guardrail.ToolAccess, len(cfg))
	for name, tc := range cfg {
		access[name] = guardrail.ToolPolicy{Roles: append([]string{}, tc.Roles...)}
	}
	return access
}

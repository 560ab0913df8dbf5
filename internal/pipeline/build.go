package pipeline

import (
	"errors"
	"fmt"

	"github.com/dativo-io/safeops/internal/advisory"
	"github.com/dativo-io/safeops/internal/auditlog"
	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/escalation"
	"github.com/dativo-io/safeops/internal/evidence"
	"github.com/dativo-io/safeops/internal/llm"
	"github.com/dativo-io/safeops/internal/notify"
	"github.com/dativo-io/safeops/internal/reasoning"
	"github.com/dativo-io/safeops/internal/rules"
)

// BuildOptions adjusts how Build wires a run.
type BuildOptions struct {
	// ResetLogs truncates the reasoning-derived logs before anything is opened.
	ResetLogs bool
	// Site overrides the location and shift heuristics.
	Site SiteContext
	// Concurrency overrides cfg.Concurrency when positive.
	Concurrency int
	// NoEvidence skips the signed evidence mirror.
	NoEvidence bool
	// Provider and Notifier replace the configured transports when set.
	Provider llm.Provider
	Notifier notify.Notifier
}

// Components is a fully wired driver plus everything it holds open.
type Components struct {
	Driver   *Driver
	Evidence *evidence.Store // nil when NoEvidence
	closers  []func() error
}

// Close releases log files and the evidence store in reverse open order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// ResetLogs empties the reasoning, action-plan and policy logs under dir.
// The action audit log is left untouched.
func ResetLogs(dir string) error {
	return auditlog.Truncate(dir, auditlog.ReasoningLogFile, auditlog.ActionPlanLogFile, auditlog.PolicyRecsLogFile)
}

// Build wires the resolver, reasoning and advisory clients, notifier, log
// sinks and evidence store described by cfg into a Driver.
func Build(cfg *config.Config, opts BuildOptions) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if opts.ResetLogs {
		if err := ResetLogs(cfg.LogDir); err != nil {
			return nil, fmt.Errorf("resetting logs: %w", err)
		}
	}

	var table rules.Table
	if cfg.RulesFile != "" {
		table, err = rules.LoadTable(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = llm.NewProvider(llm.ProviderConfig{
			Name:          cfg.LLMProvider,
			BaseURL:       cfg.LLMBaseURL,
			APIKey:        cfg.LLMAPIKey,
			RatePerMinute: cfg.RatePerMinute,
		})
		if err != nil {
			return nil, fmt.Errorf("creating provider: %w", err)
		}
	}
	transport := reasoning.NewTransport(provider, cfg.LLMModel)

	actions, err := auditlog.OpenActionLog(cfg.LogPath(auditlog.ActionLogFile), auditlog.WithEcho(true))
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, actions.Close)

	blocks := make(map[string]*auditlog.BlockLog, 3)
	for _, name := range []string{auditlog.ReasoningLogFile, auditlog.ActionPlanLogFile, auditlog.PolicyRecsLogFile} {
		b, err := auditlog.OpenBlockLog(cfg.LogPath(name))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, b.Close)
		blocks[name] = b
	}

	verdicts := reasoning.NewClient(transport, reasoning.Config{
		Timeout: cfg.ReasoningTimeout,
		Retry:   reasoning.RetryPolicy{MaxAttempts: cfg.ReasoningRetries, Delay: cfg.ReasoningRetryDelay},
		Log:     blocks[auditlog.ReasoningLogFile],
	})
	advisories := advisory.NewClient(transport, advisory.Config{
		Timeout:       cfg.AdvisoryTimeout,
		ActionPlanLog: blocks[auditlog.ActionPlanLogFile],
		PolicyLog:     blocks[auditlog.PolicyRecsLogFile],
	})

	notifier := opts.Notifier
	if notifier == nil {
		notifier, err = notify.New(notify.Config{
			Email: notify.EmailConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.AlertFrom,
				To:       cfg.AlertTo,
			},
			WebhookURL: cfg.AlertWebhookURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating notifier: %w", err)
		}
	}

	engine := escalation.NewEngine(rules.NewResolver(table), verdicts, notifier, actions,
		escalation.Config{DedupeAlerts: cfg.DedupeAlerts})

	concurrency := cfg.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	driverCfg := Config{Concurrency: concurrency, Site: opts.Site, Model: cfg.LLMModel}

	if opts.NoEvidence {
		c.Driver = NewDriver(engine, advisories, nil, driverCfg)
		return c, nil
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	store, err := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("initializing evidence: %w", err)
	}
	c.closers = append(c.closers, store.Close)
	c.Evidence = store
	c.Driver = NewDriver(engine, advisories, evidence.NewGenerator(store), driverCfg)
	return c, nil
}

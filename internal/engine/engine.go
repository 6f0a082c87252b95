package engine

import (
	"context"
	"errors"
	"io"
	"os"

	"codeownerscan/internal/config"
	"codeownerscan/internal/fetcher"
	"codeownerscan/internal/fetcher/providers"
	gh "codeownerscan/internal/github"
	"codeownerscan/internal/history"
	"codeownerscan/internal/logging"
	"codeownerscan/internal/metrics"
	"codeownerscan/internal/models"
	"codeownerscan/internal/output"
)

func exitCodeForRun(fatal bool) int {
	// Exit code contract:
	// 0 = every pending repository got a row (error annotations allowed)
	// 3 = fatal: bad input or output, authentication failure, interrupted run
	if fatal {
		return 3
	}
	return 0
}

type Engine struct {
	Client  *gh.Client
	Metrics *metrics.Metrics

	// Console receives the per-record stream; nil means stdout.
	Console io.Writer

	// newResolver is a test seam. If nil, Engine builds the real fetcher +
	// history + resolver stack on Client.
	newResolver func(cfg *config.Config) (RecordResolver, error)
}

func NewEngine(client *gh.Client) *Engine {
	return &Engine{
		Client:  client,
		Metrics: metrics.New(),
	}
}

func (e *Engine) buildResolver(cfg *config.Config) (RecordResolver, error) {
	if e.newResolver != nil {
		return e.newResolver(cfg)
	}
	if e.Client == nil {
		return nil, errors.New("github client is nil")
	}

	budget := fetcher.NewRequestBudget()
	budget.SetResetMargin(cfg.Runtime.RateLimitMargin)
	budget.SetMaxRate(cfg.Runtime.MaxRPS)

	f := fetcher.NewFetcher(e.Client, budget,
		fetcher.WithRetry(cfg.Runtime.MaxAttempts, cfg.Runtime.BackoffInitial, cfg.Runtime.BackoffMax),
		fetcher.WithMetrics(e.Metrics),
	)
	p := providers.New(f)
	return NewResolver(p, history.NewResolver(p), cfg.GitHub.CandidatePaths)
}

func setupOutputManager(cfg *config.Config, console io.Writer, m *metrics.Metrics) (*output.Manager, *output.ConsoleSink, output.ResumeState, error) {
	csvSink, state, err := output.OpenCSVSink(cfg.Output.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	outMgr := output.NewManager()
	// The CSV sink goes first: nothing else hears about a record it did not persist.
	if err := outMgr.AddSink(csvSink); err != nil {
		_ = csvSink.Close()
		return nil, nil, nil, err
	}

	if console == nil {
		console = os.Stdout
	}
	cs, err := output.NewConsoleSink(console, cfg.Output.ConsoleFormat)
	if err != nil {
		_ = outMgr.Close()
		return nil, nil, nil, err
	}
	if err := outMgr.AddSink(cs); err != nil {
		_ = outMgr.Close()
		return nil, nil, nil, err
	}
	if err := outMgr.AddSink(output.NewMetricsSink(m)); err != nil {
		_ = outMgr.Close()
		return nil, nil, nil, err
	}
	return outMgr, cs, state, nil
}

func pendingTargets(targets []models.RepositoryTarget, state output.ResumeState) []models.RepositoryTarget {
	pending := make([]models.RepositoryTarget, 0, len(targets))
	for _, t := range targets {
		if state.Has(t.RepoName) {
			continue
		}
		pending = append(pending, t)
	}
	return pending
}

// Run resolves every repository of the input that the output does not hold
// yet and appends one row per repository. It returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	logger := logging.FromContext(ctx)

	targets, err := LoadTargets(cfg.Input.Path)
	if err != nil {
		logger.Error("could not load repositories", "err", err)
		return exitCodeForRun(true)
	}
	targets = FilterTargets(targets, cfg.Input)

	outMgr, console, state, err := setupOutputManager(cfg, e.Console, e.Metrics)
	if err != nil {
		logger.Error("could not open output", "err", err)
		return exitCodeForRun(true)
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			logger.Error("could not close output", "err", err)
		}
	}()

	pending := pendingTargets(targets, state)
	summary := output.Summary{Total: len(targets), Skipped: len(targets) - len(pending)}
	e.Metrics.ObserveSkipped(summary.Skipped)
	logger.Info("loaded repositories", "total", summary.Total, "resumed", summary.Skipped, "pending", len(pending))

	resolver, err := e.buildResolver(cfg)
	if err != nil {
		logger.Error("could not set up resolver", "err", err)
		return exitCodeForRun(true)
	}
	scheduler, err := NewScheduler(resolver, cfg.Runtime.Concurrency)
	if err != nil {
		logger.Error("could not set up scheduler", "err", err)
		return exitCodeForRun(true)
	}

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh, errCh := scheduler.Execute(runCtx, pending)

	var writeErr error
	for res := range resCh {
		if writeErr != nil {
			continue
		}
		if err := outMgr.Write(res.Record); err != nil {
			writeErr = err
			logger.Error("could not write record, stopping", "repo", res.Record.RepoName, "err", err)
			cancel()
			continue
		}
		summary.Add(res.Record)
	}

	var schedErr error
	for err := range errCh {
		if err != nil {
			schedErr = err
		}
	}

	fatal := writeErr != nil || schedErr != nil
	switch {
	case writeErr != nil:
		// Already logged.
	case errors.Is(schedErr, fetcher.ErrAuth):
		logger.Error("authentication failed, stopped dispatching", "err", schedErr)
	case errors.Is(schedErr, context.DeadlineExceeded):
		logger.Warn("run timed out; unresolved repositories are retried on the next run", "err", schedErr)
	case schedErr != nil:
		logger.Warn("run interrupted; unresolved repositories are retried on the next run", "err", schedErr)
	}

	summary.ExitCode = exitCodeForRun(fatal)
	logger.Info("scan finished",
		"total", summary.Total,
		"skipped", summary.Skipped,
		"present", summary.Present,
		"absent", summary.Absent,
		"errored", summary.Errored,
		"unresolved", len(pending)-summary.Present-summary.Absent-summary.Errored,
	)
	if err := console.Finish(summary); err != nil {
		logger.Warn("could not write summary", "err", err)
	}
	if err := e.Metrics.WriteFile(cfg.Output.MetricsFile); err != nil {
		logger.Warn("could not write metrics", "err", err)
	}
	return summary.ExitCode
}

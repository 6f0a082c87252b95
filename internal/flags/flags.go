package flags

// Package flags defines canonical CLI flag names shared by the Cobra wiring
// and the config file loader, which must skip keys whose flag was set on the
// command line.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, 5, "...")
//	arg := "--" + flags.FlagConcurrency
const (
	FlagConfig = "config"

	// Input
	FlagInclude = "include"
	FlagExclude = "exclude"
	FlagLimit   = "limit"

	// Output
	FlagConsoleFormat = "console-format"
	FlagMetricsFile   = "metrics-file"

	// GitHub
	FlagAPIURL         = "api-url"
	FlagCandidatePaths = "candidate-paths"

	// Runtime
	FlagConcurrency     = "concurrency"
	FlagMaxAttempts     = "max-attempts"
	FlagBackoffInitial  = "backoff-initial"
	FlagBackoffMax      = "backoff-max"
	FlagRateLimitMargin = "rate-limit-margin"
	FlagMaxRPS          = "max-rps"
	FlagTimeout         = "timeout"
	FlagRequestTimeout  = "request-timeout"
	FlagVerbose         = "verbose"
)

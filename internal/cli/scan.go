package cli

import (
	"context"
	"errors"
	"fmt"

	"codeownerscan/internal/config"
	"codeownerscan/internal/engine"
	"codeownerscan/internal/flags"
	gh "codeownerscan/internal/github"
	"codeownerscan/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const scanHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	codeowners-scan authenticates to GitHub using an access token.

	Sources (in order):
	1) GITHUB_TOKEN environment variable
	2) GH_TOKEN environment variable
	3) GitHub CLI (gh) authentication via gh auth token -h <host>

  Token guidance (brief):
  - PAT (classic): repo scope to read private repositories.
  - Fine-grained PAT: Contents: Read and Metadata: Read on the target
    repositories.

  Examples:
    # macOS/Linux
    export GITHUB_TOKEN="<your_token>"
    codeowners-scan scan repos.csv codeowners.csv

    # GitHub CLI auth
    gh auth login
    codeowners-scan scan repos.csv codeowners.csv
`

func newScanCmd() *cobra.Command {
	cfg := config.New()
	var configPath string

	cmd := &cobra.Command{
		Use:   "scan INPUT.csv OUTPUT.csv",
		Short: "Resolve CODEOWNERS data for every repository in INPUT.csv",
		Long: `Resolve CODEOWNERS data for every repository listed in INPUT.csv and append
one row per repository to OUTPUT.csv.

Input:
	A CSV file whose header has a repo_name column (OWNER/NAME or a GitHub URL).
	An optional pr_events column is accepted; other columns are ignored.

Output:
	repo_name,has_codeowners,codeowners_created_at,owners_count,error

	has_codeowners is true or false, or empty when the repository could not be
	resolved; error then says why. codeowners_created_at is RFC 3339 UTC.
	An existing OUTPUT.csv is resumed: repositories it already holds are skipped.

	Console output is controlled by --console-format (text, ndjson, none).

Config file:
	--config reads a TOML file with [input], [output], [github] and [runtime]
	tables. Flags set on the command line win over the file.

Exit codes:
	0 = every pending repository has a row (rows may carry errors)
	3 = fatal error (bad input or output, authentication failure, interrupted)

Examples:
	codeowners-scan scan repos.csv codeowners.csv
	codeowners-scan scan repos.csv codeowners.csv --concurrency 10 --max-rps 5
	codeowners-scan scan repos.csv out.csv --api-url https://ghe.example.com/api/v3
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && cmd.Flags().NFlag() == 0 {
				return cmd.Help()
			}
			code, err := runScan(cmd, cfg, configPath, args)
			return exitCode(code, err)
		},
	}
	cmd.SetHelpTemplate(scanHelpTemplate)

	// MAINTAINER NOTE: If you add/change/remove flags here, keep the config
	// file keys in internal/config/file.go in sync.
	f := cmd.Flags()
	f.StringVar(&configPath, flags.FlagConfig, "", "TOML config file; flags set on the command line take precedence")

	// Input
	f.StringSliceVar(&cfg.Input.Include, flags.FlagInclude, nil, "Include pattern(s) (repeatable; comma-separated accepted). Go path.Match style; if pattern contains '/', matches OWNER/REPO, else matches repo name")
	f.StringSliceVar(&cfg.Input.Exclude, flags.FlagExclude, nil, "Exclude pattern(s) (repeatable; comma-separated accepted). Same matching rules as --include")
	f.IntVar(&cfg.Input.Limit, flags.FlagLimit, 0, "Resolve only the first N repositories after filtering (0 = unlimited)")

	// Output
	f.StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, cfg.Output.ConsoleFormat, "Console output format: text|ndjson|none")
	f.StringVar(&cfg.Output.MetricsFile, flags.FlagMetricsFile, "", "Write Prometheus text-format counters to this path at the end of the run")

	// GitHub
	f.StringVar(&cfg.GitHub.APIURL, flags.FlagAPIURL, cfg.GitHub.APIURL, "GitHub REST API root (GitHub Enterprise Server: https://HOST/api/v3)")
	f.StringSliceVar(&cfg.GitHub.CandidatePaths, flags.FlagCandidatePaths, cfg.GitHub.CandidatePaths, "CODEOWNERS locations in precedence order (comma-separated accepted)")

	// Runtime
	f.IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Repositories resolved in parallel")
	f.IntVar(&cfg.Runtime.MaxAttempts, flags.FlagMaxAttempts, cfg.Runtime.MaxAttempts, "Attempts per request for transient failures (5xx, network errors)")
	f.DurationVar(&cfg.Runtime.BackoffInitial, flags.FlagBackoffInitial, cfg.Runtime.BackoffInitial, "Initial backoff between attempts")
	f.DurationVar(&cfg.Runtime.BackoffMax, flags.FlagBackoffMax, cfg.Runtime.BackoffMax, "Maximum backoff between attempts")
	f.DurationVar(&cfg.Runtime.RateLimitMargin, flags.FlagRateLimitMargin, cfg.Runtime.RateLimitMargin, "Extra wait past the rate-limit reset time")
	f.Float64Var(&cfg.Runtime.MaxRPS, flags.FlagMaxRPS, 0, "Pace requests to at most this many per second (0 = unpaced)")
	f.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, 0, "Stop the run after this long (0 = no limit); unfinished repositories are resumed next run")
	f.DurationVar(&cfg.Runtime.RequestTimeout, flags.FlagRequestTimeout, cfg.Runtime.RequestTimeout, "Bound each GitHub API request (0 = no limit)")
	f.BoolVarP(&cfg.Runtime.Verbose, flags.FlagVerbose, "v", false, "Enable debug logging (prints every GitHub API call)")

	return cmd
}

func runScan(cmd *cobra.Command, cfg *config.Config, configPath string, args []string) (int, error) {
	if len(args) != 2 {
		return 3, fmt.Errorf("scan requires INPUT.csv and OUTPUT.csv, got %d argument(s)", len(args))
	}
	cfg.Input.Path, cfg.Output.Path = args[0], args[1]

	if configPath != "" {
		if err := cfg.LoadFile(configPath, cmd.Flags().Changed); err != nil {
			return 3, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return 3, err
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.Runtime.Verbose)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, logger)

	host := gh.Host(cfg.GitHub.APIURL)
	token, source, err := gh.ResolveAuthTokenForHost(ctx, "", host)
	if err != nil {
		return 3, fmt.Errorf("failed to resolve GitHub auth token: %w", err)
	}
	if token == "" {
		return 3, errors.New("GitHub auth token is required (set GITHUB_TOKEN or run 'gh auth login')")
	}
	logger.Debug("resolved auth token", "source", source, "host", host)

	var verboseLogger *log.Logger
	if cfg.Runtime.Verbose {
		verboseLogger = logger
	}
	client, err := gh.NewClient(ctx, token,
		gh.WithBaseURL(cfg.GitHub.APIURL),
		gh.WithUserAgent("codeowners-scan/"+buildVersion),
		gh.WithVerbose(verboseLogger),
		gh.WithTimeout(cfg.Runtime.RequestTimeout),
	)
	if err != nil {
		return 3, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	eng := engine.NewEngine(client)
	eng.Console = cmd.OutOrStdout()
	return eng.Run(ctx, cfg), nil
}

package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	gh "codeownerscan/internal/github"
)

// DefaultCandidatePaths are the locations GitHub reads CODEOWNERS from, in the
// order it looks at them.
var DefaultCandidatePaths = []string{".github/CODEOWNERS", "CODEOWNERS", "docs/CODEOWNERS"}

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli/scan.go
	// - config file keys in internal/config/file.go
	Input   Input
	Output  Output
	GitHub  GitHub
	Runtime Runtime
}

type Input struct {
	// Path is the repository list CSV (first positional argument).
	Path string

	// Include keeps only repositories matching one of these path.Match
	// patterns (see --include). A pattern containing '/' matches OWNER/REPO;
	// otherwise it matches the repository name.
	Include []string

	// Exclude drops repositories matching any of these patterns (see --exclude).
	Exclude []string

	// Limit keeps the first N repositories after filtering (see --limit).
	// 0 means unlimited.
	Limit int
}

type Output struct {
	// Path is the output CSV (second positional argument). An existing file is
	// resumed, not overwritten.
	Path string

	// ConsoleFormat controls the per-repository console stream (see --console-format).
	// Allowed values: text, ndjson, none.
	ConsoleFormat string

	// MetricsFile writes Prometheus text-format counters here at the end of
	// the run (see --metrics-file).
	MetricsFile string
}

type GitHub struct {
	// APIURL is the REST API root (see --api-url). Set it for GitHub
	// Enterprise Server, e.g. https://ghe.example.com/api/v3.
	APIURL string

	// CandidatePaths are the CODEOWNERS locations, in precedence order
	// (see --candidate-paths).
	CandidatePaths []string
}

type Runtime struct {
	// Concurrency is the number of repositories resolved in parallel (see --concurrency).
	// Must be >= 1.
	Concurrency int

	// MaxAttempts bounds tries per request for transient failures (see --max-attempts).
	MaxAttempts int

	// BackoffInitial and BackoffMax bound the jittered exponential backoff
	// between attempts (see --backoff-initial, --backoff-max).
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// RateLimitMargin is waited past the advertised reset before requests
	// resume (see --rate-limit-margin).
	RateLimitMargin time.Duration

	// MaxRPS paces requests to at most this many per second (see --max-rps).
	// 0 means unpaced.
	MaxRPS float64

	// Timeout bounds the whole run (see --timeout). 0 means no limit.
	Timeout time.Duration

	// RequestTimeout bounds each HTTP request (see --request-timeout).
	// 0 means no limit.
	RequestTimeout time.Duration

	// Verbose enables debug logging including HTTP traffic.
	Verbose bool
}

func New() *Config {
	return &Config{
		Output: Output{
			ConsoleFormat: "text",
		},
		GitHub: GitHub{
			APIURL:         gh.DefaultAPIURL,
			CandidatePaths: append([]string(nil), DefaultCandidatePaths...),
		},
		Runtime: Runtime{
			Concurrency:     5,
			MaxAttempts:     3,
			BackoffInitial:  2 * time.Second,
			BackoffMax:      30 * time.Second,
			RateLimitMargin: 2 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Input.Include = splitCommaList(c.Input.Include)
	c.Input.Exclude = splitCommaList(c.Input.Exclude)

	// Input / output validation
	c.Input.Path = strings.TrimSpace(c.Input.Path)
	c.Output.Path = strings.TrimSpace(c.Output.Path)
	if c.Input.Path == "" {
		return errors.New("an input CSV path is required")
	}
	if c.Output.Path == "" {
		return errors.New("an output CSV path is required")
	}
	if filepath.Clean(c.Input.Path) == filepath.Clean(c.Output.Path) {
		return errors.New("input and output must be different files")
	}
	if c.Input.Limit < 0 {
		return errors.New("--limit must be >= 0")
	}
	for _, p := range append(append([]string(nil), c.Input.Include...), c.Input.Exclude...) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid repository pattern %q: %w", p, err)
		}
	}

	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	switch c.Output.ConsoleFormat {
	case "":
		return errors.New("--console-format must be one of: text, ndjson, none")
	case "text", "ndjson", "none":
	default:
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, ndjson, none)", c.Output.ConsoleFormat)
	}

	// GitHub validation
	if _, err := gh.ParseBaseURL(c.GitHub.APIURL); err != nil {
		return fmt.Errorf("invalid --api-url value: %w", err)
	}
	paths, err := normalizeCandidatePaths(c.GitHub.CandidatePaths)
	if err != nil {
		return err
	}
	c.GitHub.CandidatePaths = paths

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.MaxAttempts <= 0 {
		return errors.New("--max-attempts must be >= 1")
	}
	if c.Runtime.BackoffInitial <= 0 {
		return errors.New("--backoff-initial must be > 0")
	}
	if c.Runtime.BackoffMax < c.Runtime.BackoffInitial {
		return errors.New("--backoff-max must be >= --backoff-initial")
	}
	if c.Runtime.RateLimitMargin < 0 {
		return errors.New("--rate-limit-margin must be >= 0")
	}
	if c.Runtime.MaxRPS < 0 {
		return errors.New("--max-rps must be >= 0")
	}
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}
	if c.Runtime.RequestTimeout < 0 {
		return errors.New("--request-timeout must be >= 0")
	}

	return nil
}

// normalizeCandidatePaths splits, cleans and dedupes repository-relative
// paths, keeping their order.
func normalizeCandidatePaths(values []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range splitCommaList(values) {
		p := path.Clean(strings.TrimPrefix(raw, "/"))
		if p == "." || p == ".." || strings.HasPrefix(p, "../") {
			return nil, fmt.Errorf("invalid candidate path %q", raw)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("--candidate-paths must name at least one path")
	}
	return out, nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

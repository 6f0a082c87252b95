package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"codeownerscan/internal/flags"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML layout of a config file:
//
//	[input]
//	include = ["acme/*"]
//	exclude = ["*-archive"]
//	limit = 500
//
//	[output]
//	console_format = "ndjson"
//	metrics_file = "scan.prom"
//
//	[github]
//	api_url = "https://ghe.example.com/api/v3"
//	candidate_paths = [".github/CODEOWNERS", "CODEOWNERS", "docs/CODEOWNERS"]
//
//	[runtime]
//	concurrency = 8
//	max_attempts = 3
//	backoff_initial = "2s"
//	backoff_max = "30s"
//	rate_limit_margin = "2s"
//	max_rps = 10
//	timeout = "6h"
//	request_timeout = "30s"
//	verbose = false
type fileConfig struct {
	Input struct {
		Include []string `toml:"include"`
		Exclude []string `toml:"exclude"`
		Limit   int      `toml:"limit"`
	} `toml:"input"`
	Output struct {
		ConsoleFormat string `toml:"console_format"`
		MetricsFile   string `toml:"metrics_file"`
	} `toml:"output"`
	GitHub struct {
		APIURL         string   `toml:"api_url"`
		CandidatePaths []string `toml:"candidate_paths"`
	} `toml:"github"`
	Runtime struct {
		Concurrency     int      `toml:"concurrency"`
		MaxAttempts     int      `toml:"max_attempts"`
		BackoffInitial  duration `toml:"backoff_initial"`
		BackoffMax      duration `toml:"backoff_max"`
		RateLimitMargin duration `toml:"rate_limit_margin"`
		MaxRPS          float64  `toml:"max_rps"`
		Timeout         duration `toml:"timeout"`
		RequestTimeout  duration `toml:"request_timeout"`
		Verbose         bool     `toml:"verbose"`
	} `toml:"runtime"`
}

// duration decodes Go duration strings such as "1m30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// binding ties a config file key to the flag that overrides it.
type binding struct {
	key   []string
	flag  string
	apply func(fc *fileConfig, c *Config)
}

var bindings = []binding{
	{[]string{"input", "include"}, flags.FlagInclude, func(fc *fileConfig, c *Config) { c.Input.Include = fc.Input.Include }},
	{[]string{"input", "exclude"}, flags.FlagExclude, func(fc *fileConfig, c *Config) { c.Input.Exclude = fc.Input.Exclude }},
	{[]string{"input", "limit"}, flags.FlagLimit, func(fc *fileConfig, c *Config) { c.Input.Limit = fc.Input.Limit }},
	{[]string{"output", "console_format"}, flags.FlagConsoleFormat, func(fc *fileConfig, c *Config) { c.Output.ConsoleFormat = fc.Output.ConsoleFormat }},
	{[]string{"output", "metrics_file"}, flags.FlagMetricsFile, func(fc *fileConfig, c *Config) { c.Output.MetricsFile = fc.Output.MetricsFile }},
	{[]string{"github", "api_url"}, flags.FlagAPIURL, func(fc *fileConfig, c *Config) { c.GitHub.APIURL = fc.GitHub.APIURL }},
	{[]string{"github", "candidate_paths"}, flags.FlagCandidatePaths, func(fc *fileConfig, c *Config) { c.GitHub.CandidatePaths = fc.GitHub.CandidatePaths }},
	{[]string{"runtime", "concurrency"}, flags.FlagConcurrency, func(fc *fileConfig, c *Config) { c.Runtime.Concurrency = fc.Runtime.Concurrency }},
	{[]string{"runtime", "max_attempts"}, flags.FlagMaxAttempts, func(fc *fileConfig, c *Config) { c.Runtime.MaxAttempts = fc.Runtime.MaxAttempts }},
	{[]string{"runtime", "backoff_initial"}, flags.FlagBackoffInitial, func(fc *fileConfig, c *Config) { c.Runtime.BackoffInitial = fc.Runtime.BackoffInitial.Duration }},
	{[]string{"runtime", "backoff_max"}, flags.FlagBackoffMax, func(fc *fileConfig, c *Config) { c.Runtime.BackoffMax = fc.Runtime.BackoffMax.Duration }},
	{[]string{"runtime", "rate_limit_margin"}, flags.FlagRateLimitMargin, func(fc *fileConfig, c *Config) { c.Runtime.RateLimitMargin = fc.Runtime.RateLimitMargin.Duration }},
	{[]string{"runtime", "max_rps"}, flags.FlagMaxRPS, func(fc *fileConfig, c *Config) { c.Runtime.MaxRPS = fc.Runtime.MaxRPS }},
	{[]string{"runtime", "timeout"}, flags.FlagTimeout, func(fc *fileConfig, c *Config) { c.Runtime.Timeout = fc.Runtime.Timeout.Duration }},
	{[]string{"runtime", "request_timeout"}, flags.FlagRequestTimeout, func(fc *fileConfig, c *Config) { c.Runtime.RequestTimeout = fc.Runtime.RequestTimeout.Duration }},
	{[]string{"runtime", "verbose"}, flags.FlagVerbose, func(fc *fileConfig, c *Config) { c.Runtime.Verbose = fc.Runtime.Verbose }},
}

// LoadFile applies the TOML config file at path onto c. Keys absent from the
// file keep their current value, and so do keys whose flag changed reports as
// set on the command line. Unknown keys are an error.
func (c *Config) LoadFile(path string, changed func(flag string) bool) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("read config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if changed == nil {
		changed = func(string) bool { return false }
	}
	for _, b := range bindings {
		if !md.IsDefined(b.key...) || changed(b.flag) {
			continue
		}
		b.apply(&fc, c)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"codeownerscan/internal/flags"
)

func validConfig() *Config {
	cfg := New()
	cfg.Input.Path = "repos.csv"
	cfg.Output.Path = "out.csv"
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Runtime.Concurrency != 5 || cfg.Runtime.MaxAttempts != 3 {
		t.Fatalf("unexpected runtime defaults: %+v", cfg.Runtime)
	}
	if cfg.Runtime.RateLimitMargin != 2*time.Second || cfg.Runtime.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected margin: %v", cfg.Runtime.RateLimitMargin)
	}
	if !reflect.DeepEqual(cfg.GitHub.CandidatePaths, DefaultCandidatePaths) {
		t.Fatalf("unexpected candidate paths: %v", cfg.GitHub.CandidatePaths)
	}
}

func TestValidate_NormalizesCommaDelimitedPatterns(t *testing.T) {
	cfg := validConfig()
	cfg.Input.Include = []string{"acme/*, other/x", "*-svc", ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"acme/*", "other/x", "*-svc"}
	if !reflect.DeepEqual(cfg.Input.Include, want) {
		t.Fatalf("Include normalized mismatch: got %v want %v", cfg.Input.Include, want)
	}
}

func TestValidate_NormalizesCandidatePaths(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.CandidatePaths = []string{"/CODEOWNERS, .github//CODEOWNERS", "CODEOWNERS"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"CODEOWNERS", ".github/CODEOWNERS"}
	if !reflect.DeepEqual(cfg.GitHub.CandidatePaths, want) {
		t.Fatalf("CandidatePaths mismatch: got %v want %v", cfg.GitHub.CandidatePaths, want)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "missing input", mutate: func(c *Config) { c.Input.Path = " " }, wantErr: "input CSV"},
		{name: "missing output", mutate: func(c *Config) { c.Output.Path = "" }, wantErr: "output CSV"},
		{name: "same file", mutate: func(c *Config) { c.Output.Path = "./repos.csv" }, wantErr: "different files"},
		{name: "negative limit", mutate: func(c *Config) { c.Input.Limit = -1 }, wantErr: "--limit"},
		{name: "bad pattern", mutate: func(c *Config) { c.Input.Exclude = []string{"[acme"} }, wantErr: "invalid repository pattern"},
		{name: "console format", mutate: func(c *Config) { c.Output.ConsoleFormat = "json" }, wantErr: "--console-format"},
		{name: "empty console format", mutate: func(c *Config) { c.Output.ConsoleFormat = " " }, wantErr: "--console-format"},
		{name: "api url", mutate: func(c *Config) { c.GitHub.APIURL = "ftp://x" }, wantErr: "--api-url"},
		{name: "no candidate paths", mutate: func(c *Config) { c.GitHub.CandidatePaths = []string{","} }, wantErr: "--candidate-paths"},
		{name: "escaping candidate path", mutate: func(c *Config) { c.GitHub.CandidatePaths = []string{"../CODEOWNERS"} }, wantErr: "invalid candidate path"},
		{name: "concurrency", mutate: func(c *Config) { c.Runtime.Concurrency = 0 }, wantErr: "--concurrency"},
		{name: "attempts", mutate: func(c *Config) { c.Runtime.MaxAttempts = 0 }, wantErr: "--max-attempts"},
		{name: "backoff initial", mutate: func(c *Config) { c.Runtime.BackoffInitial = 0 }, wantErr: "--backoff-initial"},
		{name: "backoff max", mutate: func(c *Config) { c.Runtime.BackoffMax = time.Second }, wantErr: "--backoff-max"},
		{name: "margin", mutate: func(c *Config) { c.Runtime.RateLimitMargin = -time.Second }, wantErr: "--rate-limit-margin"},
		{name: "rps", mutate: func(c *Config) { c.Runtime.MaxRPS = -1 }, wantErr: "--max-rps"},
		{name: "timeout", mutate: func(c *Config) { c.Runtime.Timeout = -time.Second }, wantErr: "--timeout"},
		{name: "request timeout", mutate: func(c *Config) { c.Runtime.RequestTimeout = -time.Second }, wantErr: "--request-timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "scan.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFile_AppliesDefinedKeys(t *testing.T) {
	p := writeConfig(t, `
[input]
exclude = ["*-archive"]
limit = 10

[output]
console_format = "ndjson"

[github]
api_url = "https://ghe.example.com/api/v3"

[runtime]
concurrency = 12
backoff_initial = "500ms"
max_rps = 2.5
`)

	cfg := validConfig()
	if err := cfg.LoadFile(p, nil); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Runtime.Concurrency != 12 {
		t.Errorf("Concurrency = %d, want 12", cfg.Runtime.Concurrency)
	}
	if cfg.Runtime.BackoffInitial != 500*time.Millisecond {
		t.Errorf("BackoffInitial = %v", cfg.Runtime.BackoffInitial)
	}
	if cfg.Runtime.MaxRPS != 2.5 {
		t.Errorf("MaxRPS = %v", cfg.Runtime.MaxRPS)
	}
	if cfg.Input.Limit != 10 || !reflect.DeepEqual(cfg.Input.Exclude, []string{"*-archive"}) {
		t.Errorf("Input = %+v", cfg.Input)
	}
	if cfg.Output.ConsoleFormat != "ndjson" {
		t.Errorf("ConsoleFormat = %q", cfg.Output.ConsoleFormat)
	}
	if cfg.GitHub.APIURL != "https://ghe.example.com/api/v3" {
		t.Errorf("APIURL = %q", cfg.GitHub.APIURL)
	}

	// Keys the file does not mention keep their defaults.
	if cfg.Runtime.MaxAttempts != 3 || cfg.Runtime.BackoffMax != 30*time.Second {
		t.Errorf("defaults overwritten: %+v", cfg.Runtime)
	}
}

func TestLoadFile_ChangedFlagsWin(t *testing.T) {
	p := writeConfig(t, "[runtime]\nconcurrency = 12\nmax_attempts = 7\n")

	cfg := validConfig()
	cfg.Runtime.Concurrency = 2
	changed := func(name string) bool { return name == flags.FlagConcurrency }
	if err := cfg.LoadFile(p, changed); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Runtime.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want the flag value 2", cfg.Runtime.Concurrency)
	}
	if cfg.Runtime.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.Runtime.MaxAttempts)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := validConfig()

	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.toml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}

	p := writeConfig(t, "[runtime]\nconcurency = 3\n")
	err := cfg.LoadFile(p, nil)
	if err == nil || !strings.Contains(err.Error(), "runtime.concurency") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	p = writeConfig(t, "[runtime]\ntimeout = \"soon\"\n")
	if err := cfg.LoadFile(p, nil); err == nil {
		t.Fatalf("expected invalid duration error")
	}
}

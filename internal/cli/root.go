package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeowners-scan",
		Short: "Resolve CODEOWNERS presence, age and owner count for a list of GitHub repositories",
		Long: `codeowners-scan reads a list of GitHub repositories and writes one CSV row per
repository: whether it declares a CODEOWNERS file, when that file was first
introduced (following renames), and how many distinct owners it names.

The scan is a restartable batch: rows are appended and synced one at a time,
and a rerun against the same output skips every repository already written.

Examples:
	# Scan a list of repositories
	codeowners-scan scan repos.csv codeowners.csv

	# Print build info
	codeowners-scan version`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newScanCmd(), newVersionCmd())
	return cmd
}

// exitCodeError carries a process exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func exitCode(code int, err error) error {
	if code == 0 && err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the root command. SIGINT and SIGTERM cancel the scan; rows
// already written stay and the rest is picked up by the next run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var ec *exitCodeError
	if errors.As(err, &ec) {
		if ec.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ec.err)
		}
		os.Exit(ec.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

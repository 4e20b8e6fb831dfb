package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/config"
	"github.com/rmax-ai/sirsim/pkg/logging"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

var version = "0.1.0-dev"

// configError marks failures caused by bad input; they exit with code 2.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ce *configError
	if errors.As(err, &ce) || errors.Is(err, simulation.ErrInvalidConfig) {
		return 2
	}
	return 1
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sirsim",
		Short: "Stochastic age-stratified SIR epidemic simulator",
		Long: `sirsim runs ensembles of a discrete-time stochastic SIR model over an
age-binned population and reports weekly case counts and cases by age.

Results can be stored in SQLite, cached in Redis, served over HTTP and
exposed to MCP clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newExecCmd(),
		newCalibrateCmd(),
		newServeCmd(),
		newRunsCmd(),
		newCacheCmd(),
		newMCPCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "sirsim version %s\n", version)
			}
		},
	}
}

// loadConfig reads and validates the config file named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &configError{err}
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, &configError{err}
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout stays free for results.
func newLogger(cfg *config.Config) *slog.Logger {
	return newLoggerTo(cfg, os.Stderr)
}

func newLoggerTo(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w).With("component", "sirsim")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/config"
	"github.com/rmax-ai/sirsim/pkg/experiment"
	"github.com/rmax-ai/sirsim/pkg/plot"
	"github.com/rmax-ai/sirsim/pkg/reports"
	"github.com/rmax-ai/sirsim/pkg/simulation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ensemble from a config file",
		Long: `Run an ensemble and write the full report set into output.dir.

Examples:
  sirsim run --config flu.yaml
  sirsim run --config flu.json --no-files --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			noFiles, _ := cmd.Flags().GetBool("no-files")
			return runExperiment(cmd, cfg, !noFiles)
		},
	}
	cmd.Flags().String("config", "", "Path to YAML or JSON config file")
	cmd.Flags().Bool("no-files", false, "Skip writing report files")
	return cmd
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec runType fileName nTrajectories lambda gamma nPeople ageMin ageMax ageBreak tMax deltaT pLength",
		Short: "Run an ensemble from positional arguments",
		Long: `Run an ensemble with the positional argument layout of the legacy
wrapper script. The remaining settings take their defaults.

Example:
  sirsim exec serial flu 100 0.3 0.1 1000 0 80 10 100 1 7`,
		Args: cobra.ExactArgs(12),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := legacyConfig(args)
			if err != nil {
				return &configError{err}
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.Logging.Level = lvl
			}
			if err := cfg.Validate(); err != nil {
				return &configError{err}
			}
			return runExperiment(cmd, cfg, true)
		},
	}
	return cmd
}

// legacyConfig maps the 12 positional arguments onto the defaults.
func legacyConfig(args []string) (*config.Config, error) {
	if len(args) != 12 {
		return nil, fmt.Errorf("expected 12 arguments, got %d", len(args))
	}
	cfg := config.Default()
	cfg.RunType = args[0]
	cfg.FileName = args[1]

	ints := []struct {
		name string
		arg  string
		dst  *int
	}{
		{"nTrajectories", args[2], &cfg.NTrajectories},
		{"nPeople", args[5], &cfg.NPeople},
		{"pLength", args[11], &cfg.PLength},
	}
	for _, f := range ints {
		n, err := strconv.Atoi(f.arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", f.name, f.arg)
		}
		*f.dst = n
	}

	floats := []struct {
		name string
		arg  string
		dst  *float64
	}{
		{"lambda", args[3], &cfg.Lambda},
		{"gamma", args[4], &cfg.Gamma},
		{"ageMin", args[6], &cfg.Age.Min},
		{"ageMax", args[7], &cfg.Age.Max},
		{"ageBreak", args[8], &cfg.Age.Break},
		{"tMax", args[9], &cfg.TMax},
		{"deltaT", args[10], &cfg.DeltaT},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(f.arg, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", f.name, f.arg)
		}
		*f.dst = v
	}
	return cfg, nil
}

func runExperiment(cmd *cobra.Command, cfg *config.Config, files bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)
	sim, err := cfg.ToSimulation()
	if err != nil {
		return &configError{err}
	}
	for _, w := range sim.Warnings() {
		logger.Warn("config_warning", "warning", w)
	}
	observed, err := observedData(cfg)
	if err != nil {
		return err
	}

	d, err := buildDeps(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer d.Close()

	// Report files need the full ensemble, so the cache is bypassed.
	res, err := d.service.Run(ctx, experiment.Request{
		Config:     sim,
		Name:       cfg.FileName,
		Observed:   observed,
		Invariants: cfg.Invariants,
		NoCache:    files,
	})
	if err != nil {
		return err
	}

	if files && res.Ensemble != nil {
		written, err := writeOutputs(ctx, cfg, res, observed)
		if err != nil {
			return err
		}
		res.Artifacts = written
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), res)
	}

	failed := 0
	for _, inv := range res.Invariants {
		if !inv.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d invariants failed", failed, len(res.Invariants))
	}
	return nil
}

func writeOutputs(ctx context.Context, cfg *config.Config, res *experiment.Result, observed []float64) ([]string, error) {
	sink, base := outputSink(cfg)
	written, err := reports.WriteAll(ctx, sink, base, reports.ReportParams{
		Result:   res.Ensemble,
		Summary:  res.Summary,
		Observed: observed,
	})
	if err != nil {
		return written, err
	}
	if cfg.Output.Plots {
		charts, err := plot.WriteAll(ctx, sink, base, res.Ensemble, res.Summary, observed)
		written = append(written, charts...)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func printResult(w io.Writer, res *experiment.Result) {
	fmt.Fprintf(w, "\n--- Run %s ---\n", res.RunID)
	if res.Cached {
		fmt.Fprintln(w, "(cached summary)")
	}
	fmt.Fprintf(w, "Elapsed: %s\n", res.Elapsed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\nWEEK\tCASES\t%s\n", res.Summary.Normalization)
	norm := res.Summary.WeeklyNormalized.Rows()
	for i, row := range res.Summary.Weekly.Rows() {
		fmt.Fprintf(tw, "%s\t%.2f\t%.4g\n", row.Label, row.Value, norm[i].Value)
	}
	fmt.Fprintf(tw, "\nAGE\tCASES\t%s\n", res.Summary.Normalization)
	for i, b := range res.Summary.AgeDistribution {
		fmt.Fprintf(tw, "[%g, %g)\t%.2f\t%.4g\n", b.Lo, b.Hi, b.Value, res.Summary.AgeNormalized[i].Value)
	}
	tw.Flush()

	if len(res.Invariants) > 0 {
		fmt.Fprintln(w, "\nInvariants:")
		for _, inv := range res.Invariants {
			status := "FAIL"
			if inv.Passed {
				status = "PASS"
			}
			fmt.Fprintf(w, "[%s] %s\n", status, invariantLine(inv))
		}
	}
	if len(res.Artifacts) > 0 {
		fmt.Fprintf(w, "\n%d files written\n", len(res.Artifacts))
	}
}

func invariantLine(inv simulation.InvariantResult) string {
	return fmt.Sprintf("%s: expected %s, got %s", inv.Metric, inv.Expected, inv.Actual)
}

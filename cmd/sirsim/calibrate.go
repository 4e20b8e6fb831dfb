package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/calibrate"
)

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit lambda and gamma to observed weekly cases by grid search",
		Long: `Evaluate the likelihood of the observed weekly cases over the lambda x
gamma grid in the calibration section and report the best point.

Examples:
  sirsim calibrate --config flu.yaml
  sirsim calibrate --config flu.yaml --observed cases.csv --surface`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("observed"); path != "" {
				cfg.Calibration.Observed = path
			}
			observed, err := observedData(cfg)
			if err != nil {
				return err
			}
			if len(observed) == 0 {
				return &configError{errors.New("calibration needs observed data (timeseries or calibration.observed)")}
			}

			base, err := cfg.ToSimulation()
			if err != nil {
				return &configError{err}
			}
			if cfg.Calibration.NTrajectories > 0 {
				base.NTrajectories = cfg.Calibration.NTrajectories
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cfg)
			grid := &calibrate.Grid{
				Base:       base,
				Lambdas:    cfg.Calibration.Lambda.Points(),
				Gammas:     cfg.Calibration.Gamma.Points(),
				Likelihood: calibrate.Likelihood(cfg.Calibration.Likelihood),
				Sigma:      cfg.Calibration.Sigma,
				Observed:   observed,
				Logger:     logger,
				Progress: func(done, total int) {
					logger.Info("calibration_progress", "done", done, "total", total)
				},
			}
			res, err := grid.Run(ctx)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Best fit (%s likelihood): lambda=%.4g gamma=%.4g log-likelihood=%.4f\n",
				grid.Likelihood, res.Best.Lambda, res.Best.Gamma, res.Best.LogLikelihood)
			if surface, _ := cmd.Flags().GetBool("surface"); surface {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "\nLAMBDA\tGAMMA\tLOG-LIKELIHOOD")
				for _, pt := range res.Surface {
					fmt.Fprintf(tw, "%.4g\t%.4g\t%.4f\n", pt.Lambda, pt.Gamma, pt.LogLikelihood)
				}
				tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "Path to YAML or JSON config file")
	cmd.Flags().String("observed", "", "Observed weekly cases CSV (overrides the config)")
	cmd.Flags().Bool("surface", false, "Print every evaluated grid point")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/app"
	"github.com/newthinker/quantsweep/internal/config"
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/sweep"
)

var (
	sweepPlanFile string
	sweepWorkers  int
	sweepTimeout  time.Duration
	sweepTop      int
	sweepJSON     bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a parameter sweep",
	Long: `Simulate every combination of a parameter grid and rank them by Calmar
ratio. The plan file names the strategy, the grid and the fixed parameters.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepPlanFile, "plan", "", "Sweep plan YAML file (required)")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "Override the plan's worker count")
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 0, "Override the plan's timeout")
	sweepCmd.Flags().IntVar(&sweepTop, "top", 10, "Number of ranked combinations to print")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Print the full report as JSON")

	sweepCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	plan, err := sweep.LoadPlan(sweepPlanFile)
	if err != nil {
		return err
	}
	if sweepWorkers > 0 {
		plan.Workers = sweepWorkers
	}
	if sweepTimeout > 0 {
		plan.Timeout = sweepTimeout
	}

	return withApp(func(a *app.App, _ *config.Config, log *zap.Logger) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := a.Sweep(ctx, plan)
		if report == nil {
			log.Error("sweep failed", zap.Error(err))
			return err
		}

		if sweepJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		} else {
			printReport(report, sweepTop)
		}

		if errors.Is(err, core.ErrSweepFailed) {
			return fmt.Errorf("no combination ranked: %w", err)
		}
		return err
	})
}

func printReport(r *sweep.Report, top int) {
	fmt.Println("=== quantsweep sweep ===")
	fmt.Printf("Sweep:    %s\n", r.ID)
	fmt.Printf("Strategy: %s\n", r.Strategy)
	fmt.Printf("Period:   %s to %s\n", r.Start.Format(core.DateLayout), r.End.Format(core.DateLayout))
	fmt.Printf("Combinations: %d total, %d ranked, %d discarded, %d failed, %d abandoned (%s)\n",
		r.Total, r.Successful(), r.Discarded, r.Failed, r.Abandoned, r.Elapsed.Round(time.Millisecond))
	fmt.Println()

	if len(r.Ranked) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\t#\tCALMAR\tSHARPE\tRETURN\tMAX DD\tFILLS\tPARAMS")
		for i, o := range r.Ranked {
			if top > 0 && i >= top {
				break
			}
			m := o.Metrics
			fmt.Fprintf(w, "%d\t%d\t%.3f\t%.3f\t%.2f%%\t%.2f%%\t%d\t%s\n",
				i+1, o.Index, o.Score, m.SharpeRatio, m.TotalReturn*100, m.MaxDrawdown*100,
				m.TradeCount, o.Params.Fingerprint())
		}
		w.Flush()
	}

	if len(r.Diagnostics) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tCODE\tREASON\tPARAMS")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, d.Code, d.Reason, d.Params)
		}
		w.Flush()
	}
}

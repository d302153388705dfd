package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/app"
	"github.com/newthinker/quantsweep/internal/config"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List strategies, their parameters and presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, cfg *config.Config, _ *zap.Logger) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STRATEGY\tDESCRIPTION\tDEFAULTS")
			for _, reg := range a.Registry().List() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", reg.Name, reg.Description, reg.Defaults.Fingerprint())
			}
			w.Flush()

			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRESET\tSTRATEGY\tPARAMS")
			for _, name := range cfg.PresetNames() {
				p := cfg.Presets[name]
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, p.Strategy, p.StrategyParams().Fingerprint())
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

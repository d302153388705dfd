package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "quantsweep",
	Short: "quantsweep - daily-bar strategy backtester and parameter sweeper",
	Long: `quantsweep replays trading strategies over daily price bars without
look-ahead, fills orders at the next day's open with commission, stamp duty
and slippage, and ranks parameter grids by risk-adjusted return.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/app"
	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/config"
	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/strategy"
)

var (
	backtestSymbols []string
	backtestFrom    string
	backtestTo      string
	backtestPreset  string
	backtestParams  []string
	backtestJSON    bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run backtest on a strategy",
	Long: `Run a strategy against historical data and show performance statistics.
The strategy may be omitted when --preset names one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&backtestSymbols, "symbols", nil, "Symbols to trade (default: data.symbols or every symbol in the data dir)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&backtestPreset, "preset", "", "Named parameter preset")
	backtestCmd.Flags().StringArrayVarP(&backtestParams, "param", "p", nil, "Strategy parameter key=value (repeatable)")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Print the full result as JSON")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	req := app.BacktestRequest{
		Preset:  backtestPreset,
		Symbols: backtestSymbols,
		Start:   backtestFrom,
		End:     backtestTo,
	}
	if len(args) == 1 {
		req.Strategy = args[0]
	}
	params, err := parseParams(backtestParams)
	if err != nil {
		return err
	}
	req.Params = params

	return withApp(func(a *app.App, _ *config.Config, log *zap.Logger) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := a.Backtest(ctx, req)
		if err != nil {
			log.Error("backtest failed", zap.Error(err))
			return err
		}

		if backtestJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(res)
		return nil
	})
}

// parseParams turns key=value pairs into parameters, keeping numbers and
// booleans typed.
func parseParams(pairs []string) (strategy.Params, error) {
	params := strategy.Params{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, core.Errorf(core.ErrInvalidParameter, "expected key=value, got %q", pair)
		}
		if i, err := strconv.Atoi(raw); err == nil {
			params[key] = i
		} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
			params[key] = f
		} else if b, err := strconv.ParseBool(raw); err == nil {
			params[key] = b
		} else {
			params[key] = raw
		}
	}
	return params, nil
}

func printResult(res *backtest.Result) {
	m := res.Metrics
	fmt.Println("=== quantsweep backtest ===")
	fmt.Printf("Run:      %s\n", res.ID)
	fmt.Printf("Strategy: %s [%s]\n", res.Strategy, res.Params.Fingerprint())
	fmt.Printf("Period:   %s to %s (%d days)\n", res.Start.Format(core.DateLayout), res.End.Format(core.DateLayout), m.TradingDays)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Initial capital\t%.2f\n", res.InitialCapital)
	fmt.Fprintf(w, "Final equity\t%.2f\n", m.FinalEquity)
	fmt.Fprintf(w, "Total return\t%.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(w, "Annualized return\t%.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(w, "Volatility\t%.2f%%\n", m.Volatility*100)
	fmt.Fprintf(w, "Sharpe ratio\t%.3f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Calmar ratio\t%.3f\n", m.CalmarRatio)
	fmt.Fprintf(w, "Daily win rate\t%.2f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Trade win rate\t%.2f%% of %d round trips\n", m.TradeWinRate*100, m.RoundTrips)
	fmt.Fprintf(w, "Fills\t%d\n", m.TradeCount)
	fmt.Fprintf(w, "Rejections\t%d\n", len(res.Rejections))
	fmt.Fprintf(w, "Costs\t%.2f (commission %.2f, stamp duty %.2f)\n", m.TotalCosts, m.TotalCommission, m.TotalStampDuty)
	w.Flush()

	if len(res.Trades) == 0 {
		return
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tENTRY\tEXIT\tQTY\tENTRY PX\tEXIT PX\tPNL\tRETURN")
	for _, t := range res.Trades {
		exit := "open"
		if t.IsClosed() {
			exit = t.ExitDate.Format(core.DateLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.3f\t%.3f\t%.2f\t%.2f%%\n",
			t.Symbol, t.EntryDate.Format(core.DateLayout), exit, t.Quantity,
			t.EntryPrice, t.ExitPrice, t.PnL, t.Return*100)
	}
	w.Flush()
}

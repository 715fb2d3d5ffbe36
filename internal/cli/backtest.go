package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"swing-trader/internal/feed"
	"swing-trader/internal/models"
	"swing-trader/internal/trading"
)

func newBacktestCmd(app *App) *cobra.Command {
	var dataDir, signalsPath, fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical candles through the engine",
		Long: `Replays a historical period through the identical component graph the
live mode runs. Results are deterministic: the same candles and signals
always produce the same trades.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fmt.Errorf("bad --from date: %w", err)
			}
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				return fmt.Errorf("bad --to date: %w", err)
			}

			signals, err := feed.NewCSVSignalSource(signalsPath)
			if err != nil {
				return err
			}

			engine := trading.NewBacktestEngine(app.Config, app.Logger, signals)
			result, err := engine.Run(context.Background(), dataDir, from, to)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(result)
			}
			renderBacktestReport(output, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "data", "candle CSV directory")
	cmd.Flags().StringVar(&signalsPath, "signals", "signals.csv", "path to the signals CSV")
	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func renderBacktestReport(output *Output, result *trading.BacktestResult) {
	output.Header(fmt.Sprintf("Backtest %s to %s",
		result.From.Format("2006-01-02"), result.To.Format("2006-01-02")))

	summary := output.Table()
	summary.AppendRows([]table.Row{
		{"Trades", len(result.Trades)},
		{"Total PnL", PnL(result.TotalPnL)},
		{"Final equity", fmt.Sprintf("%.2f", result.FinalEquity)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", result.MaxDrawdown*100)},
		{"Still open", result.OpenAtEnd},
	})
	summary.Render()

	if len(result.ByStrategy) > 0 {
		output.Header("Per strategy")
		t := output.Table()
		t.AppendHeader(table.Row{"Strategy", "Trades", "Wins", "Win rate", "PnL"})
		names := make([]string, 0, len(result.ByStrategy))
		for name := range result.ByStrategy {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ss := result.ByStrategy[name]
			t.AppendRow(table.Row{name, ss.Trades, ss.Wins,
				fmt.Sprintf("%.1f%%", ss.WinRate*100), PnL(ss.PnL)})
		}
		t.Render()
	}

	if len(result.ByReason) > 0 {
		output.Header("Exits by reason")
		t := output.Table()
		t.AppendHeader(table.Row{"Reason", "Count"})
		reasons := make([]string, 0, len(result.ByReason))
		for reason := range result.ByReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			t.AppendRow(table.Row{reason, result.ByReason[models.ExitReason(reason)]})
		}
		t.Render()
	}
}

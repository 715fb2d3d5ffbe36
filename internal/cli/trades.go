package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTradesCmd(app *App) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List closed trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			to := time.Now()
			from := to.AddDate(0, -1, 0)
			var err error
			if fromStr != "" {
				if from, err = time.Parse("2006-01-02", fromStr); err != nil {
					return fmt.Errorf("bad --from date: %w", err)
				}
			}
			if toStr != "" {
				if to, err = time.Parse("2006-01-02", toStr); err != nil {
					return fmt.Errorf("bad --to date: %w", err)
				}
				to = to.AddDate(0, 0, 1)
			}

			st, err := app.OpenStore()
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			trades, err := st.ListClosedTrades(context.Background(), from, to)
			if err != nil {
				return fmt.Errorf("listing trades: %w", err)
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(trades)
			}

			output.Header(fmt.Sprintf("Closed trades (%d)", len(trades)))
			if len(trades) == 0 {
				return nil
			}
			t := output.Table()
			t.AppendHeader(table.Row{"Exit date", "Symbol", "Strategy", "Dir", "Qty", "Entry", "Exit", "Reason", "PnL"})
			var total float64
			for _, trade := range trades {
				total += trade.PnL
				t.AppendRow(table.Row{
					trade.ExitDate.Format("2006-01-02"),
					trade.Symbol, trade.Strategy, trade.Direction, trade.Quantity,
					fmt.Sprintf("%.2f", trade.EntryPrice),
					fmt.Sprintf("%.2f", trade.ExitPrice),
					trade.Reason, PnL(trade.PnL),
				})
			}
			t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", PnL(total)})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD), default one month back")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD), default today")
	return cmd
}

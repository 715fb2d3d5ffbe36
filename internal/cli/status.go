package cli

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show risk tiers and open positions from the last snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.OpenStore()
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()
			snap, day, err := st.LoadLatestRiskSnapshot(ctx)
			if err != nil {
				return fmt.Errorf("loading snapshot: %w", err)
			}
			positions, err := st.LoadPositions(ctx)
			if err != nil {
				return fmt.Errorf("loading positions: %w", err)
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"as_of":     day,
					"risk":      snap,
					"positions": positions,
				})
			}

			if day.IsZero() {
				output.Printf("No snapshot yet.\n")
				return nil
			}

			output.Header(fmt.Sprintf("Risk state as of %s", day.Format("2006-01-02")))
			t := output.Table()
			t.AppendRows([]table.Row{
				{"Realized equity", fmt.Sprintf("%.2f", snap.Equity)},
				{"Safety-net tier", snap.SafetyTier},
			})
			t.Render()

			if len(snap.Strategies) > 0 {
				output.Header("Strategies")
				t := output.Table()
				t.AppendHeader(table.Row{"Strategy", "Tier", "Cumulative PnL"})
				for _, ss := range snap.Strategies {
					t.AppendRow(table.Row{ss.Strategy, ss.Tier, PnL(ss.CumulativePnL)})
				}
				t.Render()
			}

			output.Header(fmt.Sprintf("Open positions (%d)", len(positions)))
			if len(positions) > 0 {
				t := output.Table()
				t.AppendHeader(table.Row{"Symbol", "Strategy", "Dir", "Qty", "Entry", "Stop", "Day", "State"})
				for _, pos := range positions {
					t.AppendRow(table.Row{
						pos.Symbol, pos.Strategy, pos.Direction, pos.Quantity,
						fmt.Sprintf("%.2f", pos.EntryPrice),
						fmt.Sprintf("%.2f", pos.CurrentStop()),
						pos.DayIndex, pos.State,
					})
				}
				t.Render()
			}
			return nil
		},
	}
}

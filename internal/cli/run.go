package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swing-trader/internal/broker"
	"swing-trader/internal/feed"
	"swing-trader/internal/monitoring"
	"swing-trader/internal/risk"
	"swing-trader/internal/trading"
)

func newRunCmd(app *App) *cobra.Command {
	var signalsPath string
	var dataDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine in live or paper mode",
		Long: `Runs the daily trading loop against the configured mode.

Live mode executes through the Zerodha Kite adapter; paper mode simulates
fills. Signals are read from a CSV file produced by the upstream research
pipeline. State survives restarts through the configured SQLite store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			signals, err := feed.NewCSVSignalSource(signalsPath)
			if err != nil {
				return err
			}

			st, err := app.OpenStore()
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			b := app.NewBroker()
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := b.Login(ctx); err != nil {
				return fmt.Errorf("broker login: %w", err)
			}

			f, err := newRunFeed(app, b, dataDir)
			if err != nil {
				return err
			}

			var metrics *monitoring.Metrics
			if app.Config.Metrics.Enabled {
				metrics = monitoring.NewMetrics()
				go func() {
					if err := monitoring.Serve(app.Config.Metrics.Addr); err != nil {
						app.Logger.Error().Err(err).Msg("Metrics endpoint failed")
					}
				}()
			}

			gov := risk.NewGovernor(app.Config, app.Logger)
			orch := trading.NewOrchestrator(app.Config, app.Logger, trading.RealClock{}, f, b, st, gov, signals, metrics)

			if err := orch.Recover(ctx); err != nil {
				return fmt.Errorf("recovering state: %w", err)
			}

			app.Logger.Info().Str("mode", app.Config.Trading.Mode).Msg("Engine started")
			err = orch.Run(ctx)
			if err == context.Canceled {
				app.Logger.Info().Msg("Engine stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&signalsPath, "signals", "signals.csv", "path to the daily signals CSV")
	cmd.Flags().StringVar(&dataDir, "data", "", "candle CSV directory (paper mode feed)")
	return cmd
}

// newRunFeed builds the market-data feed for the run mode: the Kite websocket
// feed when the broker is live, a CSV candle feed otherwise.
func newRunFeed(app *App, b broker.Broker, dataDir string) (feed.Feed, error) {
	if zb, ok := b.(*broker.ZerodhaBroker); ok {
		return feed.NewKiteFeed(zb, app.Config.Credentials.Kite.APIKey, zb.AccessToken(), nil), nil
	}
	if dataDir == "" {
		return nil, fmt.Errorf("paper mode requires --data with a candle CSV directory")
	}
	return feed.NewCSVFeed(dataDir)
}

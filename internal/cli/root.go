// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"swing-trader/internal/broker"
	"swing-trader/internal/config"
	"swing-trader/internal/logging"
	"swing-trader/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by the commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Broker broker.Broker
	Store  store.Store
}

// NewBroker builds the broker for the configured mode: the Kite adapter when
// live credentials are present, the paper simulator otherwise.
func (a *App) NewBroker() broker.Broker {
	if a.Broker != nil {
		return a.Broker
	}
	kite := a.Config.Credentials.Kite
	if a.Config.Trading.Mode == "live" && kite.APIKey != "" {
		a.Broker = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:     kite.APIKey,
			APISecret:  kite.APISecret,
			UserID:     kite.UserID,
			Password:   kite.Password,
			TOTPSecret: kite.TOTPSecret,
		})
		a.Logger.Debug().Msg("Zerodha broker initialized")
	} else {
		a.Broker = broker.NewPaperBroker()
		a.Logger.Debug().Msg("Paper broker initialized")
	}
	return a.Broker
}

// OpenStore opens the configured SQLite store, caching it on the app.
func (a *App) OpenStore() (store.Store, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	st, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	a.Store = st
	return st, nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{Config: cfg, Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "swing-trader",
		Short: "Risk-gated swing trade execution engine",
		Long: `swing-trader executes externally produced trade signals under strict
risk management: admission control with capacity caps and a pre-open gap
filter, drawdown-tiered position sizing, and a multi-day exit state machine.

Strategy research happens upstream; this engine only decides which signals
become positions, how large they are, and when they close.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/swing-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("swing-trader %s\n", Version)
		},
	}
}

// Command dss is the decision support system CLI: market data updates,
// weekly signal generation, position monitoring and backtesting.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/config"
	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/modules/journal"
	"github.com/aristath/compass/internal/modules/market"
	"github.com/aristath/compass/internal/modules/settings"
)

// Exit codes: 0 success, 1 runtime failure, 2 bad arguments.
const (
	exitFailure  = 1
	exitBadUsage = 2
)

// errUsage wraps argument and flag parse errors so main can exit 2.
var errUsage = errors.New("usage error")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errUsage) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitBadUsage
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dss",
		Short:         "Swing trading decision support",
		Long:          "Market data ingestion, regime-aware signal generation, risk-managed portfolio plans and weekly backtests.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	root.AddCommand(
		newUpdateCmd(),
		newSignalsCmd(),
		newBacktestCmd(),
		newMonitorCmd(),
		newUICmd(),
		newPaperCmd(),
		newProtectionCmd(),
	)
	return root
}

// app bundles the shared wiring every command needs.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	market   *market.Store
	userDB   *database.DB
	settings *settings.Repository
	journal  *journal.Repository
}

// newApp loads configuration, opens both databases and runs migrations.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	marketStore, err := market.Open(cfg.MarketDBPath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open market store: %w", err)
	}

	userDB, err := database.New(database.Config{
		Path:    cfg.UserDBPath(),
		Profile: database.ProfileLedger,
		Name:    "user",
	})
	if err != nil {
		marketStore.Close()
		return nil, fmt.Errorf("failed to open user database: %w", err)
	}
	if err := userDB.Migrate(); err != nil {
		marketStore.Close()
		userDB.Close()
		return nil, fmt.Errorf("failed to migrate user database: %w", err)
	}

	settingsRepo := settings.NewRepository(userDB.Conn(), log)
	if err := cfg.UpdateFromSettings(settingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to apply settings overrides")
	}

	return &app{
		cfg:      cfg,
		log:      log,
		market:   marketStore,
		userDB:   userDB,
		settings: settingsRepo,
		journal:  journal.NewRepository(userDB.Conn(), log),
	}, nil
}

// Close releases the database handles.
func (a *app) Close() {
	if a.market != nil {
		a.market.Close()
	}
	if a.userDB != nil {
		a.userDB.Close()
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(lvl).With().Timestamp().Logger()
}

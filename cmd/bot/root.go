package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kemsu-schedule/schedule-bot/config"
)

var (
	cfgFile     string
	watchConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "schedule-bot",
	Short: "Telegram bot serving the university timetable",
	Long: `schedule-bot downloads the published timetable document, indexes the
institutes and groups it lists and answers students with the schedule of
their group. Subscribers receive the new schedule whenever the document changes.

Configuration comes from ./config.yaml (or --config) and environment
variables such as TELEGRAM_BOT_TOKEN, DATABASE_URL and SOURCE_URL.`,
	SilenceUsage: true,
	// Без подкоманды запускается serve.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml if present)",
	)
	rootCmd.PersistentFlags().BoolVar(
		&watchConfig, "watch-config", true, "reload the log level when the config file changes",
	)

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION AND LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// loadConfig загружает конфигурацию и настраивает логирование. Уровень логов
// меняется на лету при правке файла конфигурации.
func loadConfig() (*config.Manager, *slog.Logger, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := mgr.Get()

	level := new(slog.LevelVar)
	level.Set(logLevel(cfg))
	log := setupLogger(cfg, level)

	if watchConfig && mgr.ConfigFile() != "" {
		mgr.OnChange(func(c *config.Config) {
			level.Set(logLevel(c))
			log.Info("config reloaded", "file", mgr.ConfigFile(), "log_level", level.Level().String())
		})
		mgr.WatchConfig(func(err error) {
			log.Warn("config reload rejected", "file", mgr.ConfigFile(), "error", err)
		})
	}

	return mgr, log, nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config, level slog.Leveler) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Log.Format == "text" {
		// Текстовый формат удобнее читать локально
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name, "env", string(cfg.App.Env))
	slog.SetDefault(log)

	return log
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.App.Debug {
		return slog.LevelDebug
	}
	switch cfg.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

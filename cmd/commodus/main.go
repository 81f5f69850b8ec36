package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commodus/internal/chain"
	"commodus/internal/classifier"
	"commodus/internal/config"
	"commodus/internal/dispatch"
	"commodus/internal/domain"
	"commodus/internal/farcaster"
	"commodus/internal/gateway"
	"commodus/internal/metrics"
	"commodus/internal/notify"
	"commodus/internal/persona"
	"commodus/internal/pinner"
	"commodus/internal/store"
	"commodus/internal/summary"
	"commodus/internal/worker"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "commodus",
		Short: "Commodus: a Farcaster bot that mints and trades coins on command",
		Long:  "Commodus listens to cast mentions, classifies each into chat, coin creation or a trade, and runs the chain work as background tasks.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.commodus/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.DefaultConfigPath()
			if configPath != "" {
				cfgPath = configPath
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook gateway",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.General.LogLevel)}))
	logger.Info("starting", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	char, err := persona.Load(cfg.General.PersonaPath, logger)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()

	var st domain.Store
	var sqlStore *store.SQLiteStore
	if cfg.Memory.Enabled {
		sqlStore, err = store.NewSQLiteStore(cfg.Memory.DBPath, logger)
		if err != nil {
			return err
		}
		defer sqlStore.Close()
		st = sqlStore
	}

	social := farcaster.New(farcaster.Config{
		APIBase:    cfg.Farcaster.APIBase,
		APIKey:     cfg.Farcaster.APIKey,
		SignerUUID: cfg.Farcaster.SignerUUID,
		Logger:     logger,
	})

	brain := classifier.New(classifier.Config{
		APIBase:     cfg.Model.APIBase,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Name,
		Timeout:     time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
		BotUsername: cfg.Farcaster.BotUsername,
		Persona:     char,
		Logger:      logger,
	})

	pins := pinner.New(pinner.Config{
		APIBase:     cfg.Pinning.APIBase,
		JWT:         cfg.Pinning.JWT,
		GatewayBase: cfg.Pinning.GatewayBase,
		Logger:      logger,
	})

	tokens := chain.New(chain.Config{
		APIBase:         cfg.Chain.APIBase,
		APIKey:          cfg.Chain.APIKey,
		ReceiptInterval: time.Duration(cfg.Chain.ReceiptPollSeconds) * time.Second,
		ReceiptTimeout:  time.Duration(cfg.Chain.ReceiptTimeoutSeconds) * time.Second,
		Logger:          logger,
	})

	dispatcher := dispatch.New(dispatch.Config{
		BaseURL: cfg.Server.PublicBaseURL,
		Secret:  cfg.Tasks.Secret,
		Timeout: time.Duration(cfg.Tasks.TimeoutSeconds) * time.Second,
		Logger:  logger,
		Metrics: registry,
	})

	var notifier domain.Notifier
	if cfg.Alerts.Enabled {
		tg, err := notify.NewTelegram(cfg.Alerts.TelegramToken, cfg.Alerts.ChatID, logger)
		if err != nil {
			return fmt.Errorf("connect alert bot: %w", err)
		}
		if tg != nil {
			notifier = tg
		}
	}

	tasks := worker.New(worker.Config{
		Secret:           cfg.Tasks.Secret,
		PlatformReferrer: cfg.Chain.PlatformReferrer,
		Publisher:        social,
		Pinner:           pins,
		Tokens:           tokens,
		Store:            st,
		Notifier:         notifier,
		Logger:           logger,
		Metrics:          registry,
	})

	var refresher *summary.Refresher
	if cfg.Memory.Enabled {
		refresher = summary.New(summary.Config{
			Store:      st,
			Summarizer: brain,
			Convos:     social,
			Threshold:  cfg.Memory.RefreshThreshold,
			Logger:     logger,
		})
		if cfg.Memory.RefreshCron != "" {
			if err := refresher.StartCron(cfg.Memory.RefreshCron); err != nil {
				return err
			}
			defer refresher.StopCron()
		}
	}

	handlerCfg := gateway.HandlerConfig{
		Classifier: brain,
		Publisher:  social,
		Convos:     social,
		Dispatcher: dispatcher,
		Store:      st,
		Worker:     tasks,
		Persona:    char,
		MinScore:   cfg.Moderation.MinUserScore,
		Logger:     logger,
		Metrics:    registry,
	}
	if refresher != nil {
		handlerCfg.Refresher = refresher
	}

	var exposition *metrics.Registry
	if cfg.Metrics.Enabled {
		exposition = registry
	}
	server := gateway.NewServer(gateway.ServerConfig{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Handler: gateway.NewHandler(handlerCfg),
		Metrics: exposition,
		Logger:  logger,
	})

	err = server.Run(ctx)
	dispatcher.Wait() // let in-flight task handoffs finish
	return err
}

func logLevel(name string) slog.Level {
	switch name {
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

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("server", "host", cfg.Server.Host, "port", cfg.Server.Port, "publicBaseUrl", cfg.Server.PublicBaseURL)
			logger.Info("model", "name", cfg.Model.Name, "apiBase", cfg.Model.APIBase, "keySet", cfg.Model.APIKey != "")
			logger.Info("farcaster", "apiBase", cfg.Farcaster.APIBase, "signerSet", cfg.Farcaster.SignerUUID != "")
			logger.Info("chain", "apiBase", cfg.Chain.APIBase, "referrer", cfg.Chain.PlatformReferrer)
			logger.Info("memory", "enabled", cfg.Memory.Enabled, "dbPath", cfg.Memory.DBPath)
			logger.Info("alerts", "enabled", cfg.Alerts.Enabled)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. moderation.minUserScore)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. moderation.minUserScore 0.7)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/api"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/detector"
	"github.com/ln9swrd/coinpulse-sub000/internal/logging"
	"github.com/ln9swrd/coinpulse-sub000/internal/monitor"
	"github.com/ln9swrd/coinpulse-sub000/internal/notification"
	"github.com/ln9swrd/coinpulse-sub000/internal/scheduler"
	"github.com/ln9swrd/coinpulse-sub000/internal/scoring"
	"github.com/ln9swrd/coinpulse-sub000/internal/selector"
	"github.com/ln9swrd/coinpulse-sub000/internal/sweeper"
	"github.com/ln9swrd/coinpulse-sub000/internal/trader"
	"github.com/ln9swrd/coinpulse-sub000/internal/upbit"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	genConfig := flag.Bool("generate-config", false, "write a sample config file and exit")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample config written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	loader := config.NewLoader(*configPath, cfg)

	logger := logging.Setup(cfg.LoggingConfig.Level, cfg.LoggingConfig.Console)
	logger.Info().Str("config", *configPath).Msg("starting surge detector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	repo := database.NewRepository(db)

	// Watchlist cache; redis is optional and the selector degrades to its
	// in-memory copy when it is absent.
	var rdb *redis.Client
	if cfg.RedisConfig.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, watchlist cache is memory-only")
			rdb = nil
		}
	}
	cache := selector.NewWatchlistCache(rdb)

	// Exchange
	client := upbit.NewClient(cfg.UpbitConfig.AccessKey, cfg.UpbitConfig.SecretKey, cfg.UpbitConfig.BaseURL)
	stream := upbit.NewPriceStream(cfg.UpbitConfig.WebsocketURL, logger)
	stream.Start()
	defer stream.Stop()

	// Notifications
	notifyManager := notification.NewManager(cfg.NotificationConfig.Enabled)
	if cfg.NotificationConfig.Telegram.Enabled {
		notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  cfg.NotificationConfig.Telegram.Enabled,
		}))
		logger.Info().Msg("telegram notifications enabled")
	}
	if cfg.NotificationConfig.Discord.Enabled {
		notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
		}))
		logger.Info().Msg("discord notifications enabled")
	}

	// Core components
	sel := selector.NewSelector(client, cache, logger)
	engine := scoring.NewEngine()
	dedup := detector.NewDeduper()
	trd := trader.New(client, logger)

	det := detector.New(loader, client, sel, engine, repo, dedup, notifyManager, trd, logger)
	det.WatchlistChanged = stream.SetSymbols

	mon := monitor.New(loader, client, stream, engine, repo, trd, notifyManager, logger)
	swp := sweeper.New(loader, client, stream, repo, logger)
	rec := sweeper.NewReconciler(loader, client, repo, logger)

	// Periodic loops; each reads the interval fresh so config reloads
	// apply between cycles.
	detectLoop := scheduler.NewRunner("detector", func() time.Duration {
		return loader.Current().DetectionInterval()
	}, det.RunCycle, logger)
	monitorLoop := scheduler.NewRunner("monitor", func() time.Duration {
		return loader.Current().MonitorInterval()
	}, mon.RunCycle, logger)
	sweepLoop := scheduler.NewRunner("sweeper", func() time.Duration {
		return loader.Current().SweepInterval()
	}, swp.RunCycle, logger)

	detectLoop.Start()
	monitorLoop.Start()
	sweepLoop.Start()

	// Wall-clock schedules
	crontab := scheduler.NewCron(logger)
	if err := crontab.Add("watchlist-refresh", cfg.SelectorConfig.RefreshSchedule, func(ctx context.Context) error {
		return sel.Refresh(ctx, loader.Current().SelectorConfig)
	}); err != nil {
		logger.Fatal().Err(err).Msg("invalid watchlist refresh schedule")
	}
	if err := crontab.Add("outcome-reconcile", cfg.SweeperConfig.ReconcileSchedule, rec.RunCycle); err != nil {
		logger.Fatal().Err(err).Msg("invalid reconcile schedule")
	}
	crontab.Start()

	// Status API
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, repo, sel, det,
			[]api.StatusSource{detectLoop, monitorLoop, sweepLoop}, logger)
		server.Start()
	}

	logger.Info().Msg("all loops running")
	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("status API shutdown")
		}
		cancel()
	}
	crontab.Stop()
	detectLoop.Stop()
	monitorLoop.Stop()
	sweepLoop.Stop()
	logger.Info().Msg("stopped")
}

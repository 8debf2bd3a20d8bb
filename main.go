package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phishguard/internal/blocklist"
	"phishguard/internal/config"
	"phishguard/internal/docstore"
	"phishguard/internal/identity"
	"phishguard/internal/inference"
	"phishguard/internal/localstore"
	"phishguard/internal/notifier"
	"phishguard/internal/qa"
	"phishguard/internal/realtime"
	"phishguard/internal/reports"
	"phishguard/internal/scanner"
	"phishguard/internal/server"
)

func main() {
	// Load configuration
	cfgPath := "configs/config.yml"
	if p := os.Getenv("PHISHGUARD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Document store
	var store docstore.Store
	if cfg.Database.URL != "" {
		pg, err := docstore.NewPostgres(cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("No database.url configured, using the in-memory document store")
		store = docstore.NewMemory()
	}
	defer store.Close()

	// On-device storage
	local, err := localstore.Open(cfg.LocalStore.Driver, cfg.LocalStore.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open local store", zap.Error(err))
	}
	defer local.Close()

	// Telegram notifications (optional)
	bot, err := notifier.NewBot(cfg.Notifications.Enabled, cfg.Notifications.TelegramBotToken, cfg.Notifications.ChatID, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
		bot = nil
	}

	accounts := identity.NewService(store, cfg.Auth.JWTSecret, logger)
	history := realtime.NewHistory(store, logger)
	scans := scanner.NewService(inference.NewClient(cfg.Inference.URL, cfg.InferenceTimeout()), nil, history, logger)
	reportService := reports.NewService(store, bot, logger)
	questionService := qa.NewService(store, cfg.QA.ReviewerID, bot, logger)

	dashboard, err := reports.OpenDashboard(ctx, store)
	if err != nil {
		logger.Fatal("Failed to open report dashboard", zap.Error(err))
	}
	defer dashboard.Close()

	feed, err := qa.OpenFeed(ctx, store)
	if err != nil {
		logger.Fatal("Failed to open question feed", zap.Error(err))
	}
	defer feed.Close()

	// Block list, refreshed in the background
	blockLog := logrus.New()
	blockLog.SetFormatter(&logrus.JSONFormatter{})
	var source blocklist.Source = blocklist.NewDocstoreSource(store)
	if cfg.Blocklist.FirestoreURL != "" {
		source = blocklist.NewFirestoreSource(cfg.Blocklist.FirestoreURL, cfg.InferenceTimeout())
	}
	cache := blocklist.NewCache(source, blockLog)
	refresher := blocklist.NewRefresher(cache, cfg.RefreshInterval(), blockLog)

	srv := server.NewServer(server.Deps{
		Store:     store,
		Local:     local,
		Tokens:    accounts,
		Accounts:  accounts,
		Scanner:   scans,
		History:   history,
		Reports:   reportService,
		Dashboard: dashboard,
		Questions: questionService,
		Feed:      feed,
		Blocklist: cache,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return refresher.Run(ctx) })
	g.Go(func() error { return bot.Start(ctx) })
	g.Go(func() error { return srv.Run(ctx, cfg.Server.Port) })

	if err := g.Wait(); err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
		return
	}
	logger.Info("Application stopped.")
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

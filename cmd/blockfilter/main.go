// Command blockfilter is a forward HTTP proxy that cancels every request to
// a host on the PhishGuard block list. Point a browser or system proxy
// setting at it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"phishguard/internal/blocklist"
	"phishguard/internal/config"
	"phishguard/internal/proxy"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfgPath := "configs/config.yml"
	if p := os.Getenv("PHISHGUARD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Development {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}
	if cfg.Blocklist.FirestoreURL == "" {
		log.Fatal("blocklist.firestore_url must be set")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source := blocklist.NewFirestoreSource(cfg.Blocklist.FirestoreURL, cfg.InferenceTimeout())
	cache := blocklist.NewCache(source, log)
	refresher := blocklist.NewRefresher(cache, cfg.RefreshInterval(), log)
	filter := proxy.NewFilter(cache, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return refresher.Run(ctx) })
	g.Go(func() error { return proxy.Serve(ctx, cfg.Blocklist.ProxyListen, filter, log) })

	if err := g.Wait(); err != nil {
		log.Fatalf("Block filter stopped: %v", err)
	}
	log.Info("Block filter stopped.")
}

package blocklist

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval matches the extension's five minute timer.
const DefaultRefreshInterval = 5 * time.Minute

// Refresher keeps a Cache current on a fixed timer. Failed refreshes are not
// retried early; the next tick tries again.
type Refresher struct {
	cache    *Cache
	interval time.Duration
	log      *logrus.Logger
}

func NewRefresher(cache *Cache, interval time.Duration, log *logrus.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{cache: cache, interval: interval, log: log}
}

// Run refreshes once immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.log.WithField("interval", r.interval.String()).Info("Starting block list refresher")
	_ = r.cache.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Block list refresher stopped")
			return nil
		case <-ticker.C:
			_ = r.cache.Refresh(ctx)
		}
	}
}

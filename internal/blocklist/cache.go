// Package blocklist keeps the set of known phishing hosts and answers
// allow/cancel decisions for outgoing requests without touching the network.
package blocklist

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"phishguard/internal/metrics"
)

// State describes the cache lifecycle.
type State int32

const (
	// Unloaded: no fetch has succeeded yet, every request is allowed.
	Unloaded State = iota
	Loaded
	// Refreshing: a fetch is in flight after an earlier success; the
	// previous set still answers. The first fetch stays Unloaded.
	Refreshing
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Refreshing:
		return "refreshing"
	default:
		return "unloaded"
	}
}

// Decision is the verdict for one request.
type Decision struct {
	Cancel bool   `json:"cancel"`
	Host   string `json:"host"`
}

type hostSet map[string]struct{}

// Cache owns the active host set. Evaluate reads it lock-free; Refresh builds
// a replacement off to the side and swaps it in whole.
type Cache struct {
	source Source
	log    *logrus.Logger

	hosts      atomic.Pointer[hostSet]
	loaded     atomic.Bool
	refreshing atomic.Bool
	mu         sync.Mutex // one refresh at a time
}

// NewCache creates an unloaded cache fed by source.
func NewCache(source Source, log *logrus.Logger) *Cache {
	c := &Cache{source: source, log: log}
	empty := hostSet{}
	c.hosts.Store(&empty)
	return c
}

// Refresh fetches the list and replaces the active set. On failure the
// previous set stays active and the error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	entries, err := c.source.Fetch(ctx)
	if err != nil {
		metrics.BlocklistRefreshTotal.WithLabelValues("error").Inc()
		c.log.WithError(err).Warn("Block list refresh failed, keeping previous list")
		return fmt.Errorf("failed to fetch block list: %w", err)
	}

	next := make(hostSet, len(entries))
	for _, e := range entries {
		if host := NormalizeHost(e); host != "" {
			next[host] = struct{}{}
		}
	}
	c.hosts.Store(&next)
	c.loaded.Store(true)

	metrics.BlocklistRefreshTotal.WithLabelValues("ok").Inc()
	metrics.BlocklistHosts.Set(float64(len(next)))
	c.log.WithField("hosts", len(next)).Info("Block list refreshed")
	return nil
}

// Evaluate decides whether a request to rawURL is cancelled. URLs without a
// parseable host are allowed.
func (c *Cache) Evaluate(rawURL string) Decision {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Decision{}
	}
	return c.EvaluateHost(u.Hostname())
}

// EvaluateHost decides for a bare hostname, as seen in CONNECT requests.
func (c *Cache) EvaluateHost(host string) Decision {
	host = NormalizeHost(host)
	if host == "" {
		return Decision{}
	}
	_, blocked := (*c.hosts.Load())[host]
	return Decision{Cancel: blocked, Host: host}
}

// State reports the lifecycle state.
func (c *Cache) State() State {
	if !c.loaded.Load() {
		return Unloaded
	}
	if c.refreshing.Load() {
		return Refreshing
	}
	return Loaded
}

// Hosts returns the active set, sorted.
func (c *Cache) Hosts() []string {
	set := *c.hosts.Load()
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// NormalizeHost lowercases a hostname. Entries written as full URLs are
// reduced to their host.
func NormalizeHost(entry string) string {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "://") {
		u, err := url.Parse(entry)
		if err != nil {
			return ""
		}
		entry = u.Hostname()
	}
	return strings.TrimSuffix(strings.ToLower(entry), ".")
}

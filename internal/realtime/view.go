// Package realtime mirrors remote collections into local views and owns the
// scan history write path with its on-device fallback.
package realtime

import (
	"context"
	"sync"

	"phishguard/internal/docstore"
	"phishguard/internal/metrics"
)

// View is a live, ordered copy of a query result. Every snapshot replaces
// the previous contents entirely.
type View[T any] struct {
	mu       sync.RWMutex
	items    []T
	onChange func([]T)

	ready     chan struct{}
	readyOnce sync.Once
	cancel    docstore.CancelFunc
	closeOnce sync.Once
}

// Subscribe opens a view of q. onChange, if not nil, receives a copy of the
// items after each snapshot; it must not call Close.
func Subscribe[T any](ctx context.Context, store docstore.Store, q docstore.Query, decode func(docstore.Document) T, onChange func([]T)) (*View[T], error) {
	v := &View[T]{onChange: onChange, ready: make(chan struct{})}

	cancel, err := store.Subscribe(ctx, q, func(docs []docstore.Document) {
		items := make([]T, len(docs))
		for i, d := range docs {
			items[i] = decode(d)
		}

		v.mu.Lock()
		v.items = items
		v.mu.Unlock()
		v.readyOnce.Do(func() { close(v.ready) })

		if v.onChange != nil {
			v.onChange(v.Items())
		}
	})
	if err != nil {
		return nil, err
	}
	v.cancel = cancel
	metrics.ActiveSubscriptions.Inc()
	return v, nil
}

// Items returns a copy of the current contents.
func (v *View[T]) Items() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

// Ready is closed once the first snapshot has arrived.
func (v *View[T]) Ready() <-chan struct{} {
	return v.ready
}

// Close releases the subscription. Later calls do nothing.
func (v *View[T]) Close() {
	v.closeOnce.Do(func() {
		v.cancel()
		metrics.ActiveSubscriptions.Dec()
	})
}

package docstore

import (
	"context"
	"sync"
)

type listFunc func(ctx context.Context, q Query) ([]Document, error)

// subscription re-lists its query whenever it is signalled. Signals coalesce:
// a burst of writes yields at least one fresh snapshot, never a stale one.
type subscription struct {
	query   Query
	fn      SnapshotFunc
	list    listFunc
	onError func(error)

	notify  chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newSubscription(q Query, fn SnapshotFunc, list listFunc, onError func(error)) *subscription {
	return &subscription{
		query:   q,
		fn:      fn,
		list:    list,
		onError: onError,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		docs, err := s.list(ctx, s.query)
		if err != nil {
			if s.onError != nil && ctx.Err() == nil {
				s.onError(err)
			}
		} else {
			select {
			case <-s.done:
				return
			default:
				s.fn(docs)
			}
		}

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.notify:
		}
	}
}

// stop must not be called from inside the subscription's own SnapshotFunc.
func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
}

// hub tracks live subscriptions by collection.
type hub struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscription]struct{})}
}

func (h *hub) start(ctx context.Context, s *subscription) CancelFunc {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go s.run(ctx)

	return func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		s.stop()
	}
}

func (h *hub) publish(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.query.Collection == collection {
			s.signal()
		}
	}
}

// publishAll wakes every subscriber, used after a change feed reconnect when
// notifications may have been missed.
func (h *hub) publishAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.signal()
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = make(map[*subscription]struct{})
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

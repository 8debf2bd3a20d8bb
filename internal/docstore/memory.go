package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs development runs without a
// database and the service tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	hub         *hub
	now         func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		hub:         newHub(),
		now:         time.Now,
	}
}

// WithClock replaces the clock used for ServerTimestamp and creation times.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Set(_ context.Context, collection, id string, data map[string]any) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: empty collection or id", ErrInvalidQuery)
	}

	m.mu.Lock()
	now := m.now()
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		m.collections[collection] = docs
	}
	createdAt := now
	if existing, ok := docs[id]; ok {
		createdAt = existing.CreatedAt
	}
	docs[id] = Document{
		ID:         id,
		Collection: collection,
		Data:       resolveValues(data, now),
		CreatedAt:  createdAt,
	}
	m.mu.Unlock()

	m.hub.publish(collection)
	return nil
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	now := m.now()
	data := copyMap(doc.Data)
	for k, v := range fields {
		if inc, ok := v.(Increment); ok {
			current, _ := numberValue(data[k])
			data[k] = current + float64(inc)
			continue
		}
		data[k] = resolveValue(v, now)
	}
	doc.Data = data
	m.collections[collection][id] = doc
	m.mu.Unlock()

	m.hub.publish(collection)
	return nil
}

func (m *Memory) List(_ context.Context, q Query) ([]Document, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}

	m.mu.RLock()
	docs := make([]Document, 0, len(m.collections[q.Collection]))
	for _, doc := range m.collections[q.Collection] {
		docs = append(docs, copyDocument(doc))
	}
	m.mu.RUnlock()

	sortDocuments(docs, q)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (m *Memory) DeleteBatch(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	docs := m.collections[collection]
	for _, id := range ids {
		if _, ok := docs[id]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(docs, id)
	}
	m.mu.Unlock()

	m.hub.publish(collection)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (CancelFunc, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection", ErrInvalidQuery)
	}
	return m.hub.start(ctx, newSubscription(q, fn, m.List, nil)), nil
}

func (m *Memory) Close() error {
	m.hub.closeAll()
	return nil
}

func resolveValues(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now
	case map[string]any:
		return resolveValues(val, now)
	default:
		return v
	}
}

func copyDocument(doc Document) Document {
	doc.Data = copyMap(doc.Data)
	return doc
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = copyMap(nested)
		}
		out[k] = v
	}
	return out
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case Increment:
		return float64(n), true
	}
	return 0, false
}

// sortDocuments orders by the query field, falling back to creation time and
// then id so that ties are deterministic.
func sortDocuments(docs []Document, q Query) {
	less := func(a, b Document) bool {
		if q.OrderBy != "" {
			if c := compareValues(a.Data[q.OrderBy], b.Data[q.OrderBy]); c != 0 {
				return c < 0
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if q.Direction == Descending {
			return less(docs[j], docs[i])
		}
		return less(docs[i], docs[j])
	})
}

func compareValues(a, b any) int {
	if ta, ok := TimeValue(a); ok {
		if tb, ok := TimeValue(b); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := numberValue(a); ok {
		if nb, ok := numberValue(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	switch {
	case aok && bok:
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}

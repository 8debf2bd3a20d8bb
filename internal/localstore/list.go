package localstore

import (
	"encoding/json"

	"go.uber.org/zap"
)

// DefaultListLimit is the cap of the per-kind local scan histories.
const DefaultListLimit = 10

// BoundedList is a newest-first JSON array stored under one key.
type BoundedList[T any] struct {
	store  Store
	key    string
	limit  int
	logger *zap.Logger
}

func NewBoundedList[T any](store Store, key string, limit int, logger *zap.Logger) *BoundedList[T] {
	return &BoundedList[T]{store: store, key: key, limit: limit, logger: logger}
}

// Load returns the stored items. A missing or corrupt value reads as empty.
func (l *BoundedList[T]) Load() ([]T, error) {
	raw, ok, err := l.store.Get(l.key)
	if err != nil || !ok {
		return nil, err
	}
	return l.decode(raw), nil
}

// Prepend puts item first and evicts from the tail beyond the limit.
func (l *BoundedList[T]) Prepend(item T) ([]T, error) {
	var result []T
	err := l.store.Update(l.key, func(current []byte, ok bool) ([]byte, error) {
		var items []T
		if ok {
			items = l.decode(current)
		}
		items = append([]T{item}, items...)
		if l.limit > 0 && len(items) > l.limit {
			items = items[:l.limit]
		}
		result = items
		return json.Marshal(items)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Clear removes the list.
func (l *BoundedList[T]) Clear() error {
	return l.store.Delete(l.key)
}

func (l *BoundedList[T]) decode(raw []byte) []T {
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		l.logger.Warn("Discarding corrupt local list", zap.String("key", l.key), zap.Error(err))
		return nil
	}
	return items
}

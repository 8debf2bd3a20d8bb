// Package localstore is the node's on-device key-value storage. Values are
// opaque bytes; callers store JSON.
package localstore

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Well-known keys.
const (
	KeyProgress         = "phishguard-progress"
	KeyLinkScanHistory  = "linkScanHistory"
	KeyEmailScanHistory = "emailScanHistory"
	KeyDocScanHistory   = "docScanHistory"
	KeyLegacyScans      = "scanHistory"
)

// UpdateFunc maps the current value (ok is false when absent) to the new one.
// Returning a nil value deletes the key.
type UpdateFunc func(current []byte, ok bool) ([]byte, error)

// Store is implemented by SQLite and Bolt.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Update applies fn atomically with respect to other writers of key.
	Update(key string, fn UpdateFunc) error
	Close() error
}

// Open selects an implementation by driver name.
func Open(driver, path string, logger *zap.Logger) (Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create local store directory: %w", err)
		}
	}

	switch driver {
	case "sqlite":
		return OpenSQLite(path, logger)
	case "bolt":
		return OpenBolt(BoltOptions{Path: path}, logger)
	default:
		return nil, fmt.Errorf("unknown local store driver %q", driver)
	}
}

type namespaced struct {
	Store
	prefix string
}

// Namespace scopes every key of s under device. Closing the returned store
// is a no-op; the caller owns s.
func Namespace(s Store, device string) Store {
	return namespaced{Store: s, prefix: device + "/"}
}

func (n namespaced) Get(key string) ([]byte, bool, error) { return n.Store.Get(n.prefix + key) }
func (n namespaced) Put(key string, value []byte) error  { return n.Store.Put(n.prefix+key, value) }
func (n namespaced) Delete(key string) error             { return n.Store.Delete(n.prefix + key) }
func (n namespaced) Close() error                        { return nil }

func (n namespaced) Update(key string, fn UpdateFunc) error {
	return n.Store.Update(n.prefix+key, fn)
}

package localstore

import (
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketKV = []byte("kv")

// BoltOptions configures the bbolt store.
type BoltOptions struct {
	Path string

	// Timeout for obtaining the file lock. Zero means 5 seconds.
	Timeout time.Duration

	// FileMode for creating the file. Zero means 0600.
	FileMode os.FileMode
}

// Bolt keeps values in a single bucket of a bbolt file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the bbolt file described by opts.
func OpenBolt(opts BoltOptions, logger *zap.Logger) (*Bolt, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketKV, err)
	}

	logger.Info("Local store initialized", zap.String("driver", "bolt"), zap.String("path", opts.Path))
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) ([]byte, bool, error) {
	var value []byte
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v != nil {
			// Values are only valid for the life of the transaction.
			value = append([]byte{}, v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (b *Bolt) Put(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
}

func (b *Bolt) Update(key string, fn UpdateFunc) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketKV)
		current := bucket.Get([]byte(key))
		next, err := fn(append([]byte(nil), current...), current != nil)
		if err != nil {
			return err
		}
		if next == nil {
			return bucket.Delete([]byte(key))
		}
		return bucket.Put([]byte(key), next)
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

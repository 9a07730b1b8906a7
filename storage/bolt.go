package storage

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var defaultBucket = []byte("fund")

// BoltDB stores every key in a single bbolt bucket.
type BoltDB struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltDB opens (or creates) the bbolt file at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{db: db, bucket: defaultBucket}, nil
}

func (b *BoltDB) bucketOf(tx *bolt.Tx) (*bolt.Bucket, error) {
	bucket := tx.Bucket(b.bucket)
	if bucket == nil {
		return nil, fmt.Errorf("storage: bucket %s not found", string(b.bucket))
	}
	return bucket, nil
}

func (b *BoltDB) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}
		return bucket.Put(key, value)
	})
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}
		v := bucket.Get(key)
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := b.bucketOf(tx)
		if err != nil {
			return err
		}
		return bucket.Delete(key)
	})
}

func (b *BoltDB) NewBatch() Batch { return &boltBatch{db: b} }

func (b *BoltDB) Close() {
	_ = b.db.Close()
}

type boltBatch struct {
	db  *BoltDB
	ops []op
}

func (bb *boltBatch) Put(key []byte, value []byte) {
	bb.ops = append(bb.ops, op{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (bb *boltBatch) Delete(key []byte) {
	bb.ops = append(bb.ops, op{key: append([]byte(nil), key...), delete: true})
}

func (bb *boltBatch) Len() int { return len(bb.ops) }

func (bb *boltBatch) Write() error {
	if len(bb.ops) == 0 {
		return nil
	}
	err := bb.db.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bb.db.bucketOf(tx)
		if err != nil {
			return err
		}
		for _, o := range bb.ops {
			if o.delete {
				err = bucket.Delete(o.key)
			} else {
				err = bucket.Put(o.key, o.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	bb.ops = nil
	return nil
}

// IsNotFound reports whether err signals a missing key on any backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

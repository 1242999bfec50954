package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

var bucketName = []byte("resources")

// BoltStore persists resources to a BoltDB file on disk.
type BoltStore struct {
	db       *bolt.DB
	mu       sync.RWMutex // protects watchers slice only
	watchers []*watcher
}

// NewBoltStore opens (or creates) a BoltDB database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	// Ensure the bucket exists.
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// ---------- CRUD ----------

func (b *BoltStore) Create(key string, value interface{}) error {
	return b.Txn(func(tx Tx) error {
		return tx.Create(key, value)
	})
}

func (b *BoltStore) Get(key string, target interface{}) error {
	return b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, target)
	})
}

func (b *BoltStore) Update(key string, value interface{}) error {
	return b.Txn(func(tx Tx) error {
		return tx.Update(key, value)
	})
}

func (b *BoltStore) Delete(key string) error {
	return b.Txn(func(tx Tx) error {
		return tx.Delete(key)
	})
}

// ---------- List ----------

func (b *BoltStore) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	var results []interface{}
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		results, err = scanPrefix(tx.Bucket(bucketName), prefix, factory)
		return err
	})
	return results, err
}

// scanPrefix walks the bucket from prefix while keys still match. Bolt keeps
// keys sorted, so results come back in key order.
func scanPrefix(bkt *bolt.Bucket, prefix string, factory func() interface{}) ([]interface{}, error) {
	var results []interface{}
	c := bkt.Cursor()
	pfx := []byte(prefix)

	for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
		obj := factory()
		if err := json.Unmarshal(v, obj); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", k, err)
		}
		results = append(results, obj)
	}
	return results, nil
}

// ---------- Txn ----------

func (b *BoltStore) Txn(fn func(tx Tx) error) error {
	var events []v1alpha1.WatchEvent

	err := b.db.Update(func(btx *bolt.Tx) error {
		tx := &boltTx{bkt: btx.Bucket(bucketName)}
		if err := fn(tx); err != nil {
			return err
		}
		events = tx.events
		return nil
	})
	if err != nil {
		return err
	}

	for _, evt := range events {
		b.notify(evt)
	}
	return nil
}

// boltTx writes straight into the bolt transaction; bolt rolls it back if
// the callback fails.
type boltTx struct {
	bkt    *bolt.Bucket
	events []v1alpha1.WatchEvent
}

func (t *boltTx) Get(key string, target interface{}) error {
	raw := t.bkt.Get([]byte(key))
	if raw == nil {
		return ErrNotFound
	}
	return json.Unmarshal(raw, target)
}

func (t *boltTx) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	return scanPrefix(t.bkt, prefix, factory)
}

func (t *boltTx) Create(key string, value interface{}) error {
	if t.bkt.Get([]byte(key)) != nil {
		return ErrAlreadyExists
	}
	return t.put(key, value, v1alpha1.EventAdded)
}

func (t *boltTx) Update(key string, value interface{}) error {
	if t.bkt.Get([]byte(key)) == nil {
		return ErrNotFound
	}
	return t.put(key, value, v1alpha1.EventModified)
}

func (t *boltTx) Delete(key string) error {
	raw := t.bkt.Get([]byte(key))
	if raw == nil {
		return ErrNotFound
	}
	// Capture the object before deletion so watchers receive it.
	var obj interface{}
	_ = json.Unmarshal(raw, &obj)
	if err := t.bkt.Delete([]byte(key)); err != nil {
		return err
	}
	t.events = append(t.events, v1alpha1.WatchEvent{
		Type:   v1alpha1.EventDeleted,
		Kind:   kindFromKey(key),
		Key:    key,
		Object: obj,
	})
	return nil
}

func (t *boltTx) put(key string, value interface{}, typ v1alpha1.EventType) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := t.bkt.Put([]byte(key), raw); err != nil {
		return err
	}
	t.events = append(t.events, v1alpha1.WatchEvent{
		Type:   typ,
		Kind:   kindFromKey(key),
		Key:    key,
		Object: value,
	})
	return nil
}

// ---------- Watch ----------

func (b *BoltStore) Watch(prefix string) (<-chan v1alpha1.WatchEvent, func()) {
	w := &watcher{
		prefix: prefix,
		ch:     make(chan v1alpha1.WatchEvent, 64),
	}

	b.mu.Lock()
	b.watchers = append(b.watchers, w)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.watchers = removeWatcher(b.watchers, w)
	}

	return w.ch, cancel
}

// ---------- Close ----------

func (b *BoltStore) Close() error {
	b.mu.Lock()
	for _, w := range b.watchers {
		close(w.ch)
	}
	b.watchers = nil
	b.mu.Unlock()

	return b.db.Close()
}

// ---------- internal ----------

func (b *BoltStore) notify(evt v1alpha1.WatchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	broadcast(b.watchers, evt)
}

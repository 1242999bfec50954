package store

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// watcher is an internal subscription to store mutations.
type watcher struct {
	prefix string
	ch     chan v1alpha1.WatchEvent
}

// MemoryStore is a thread-safe, in-memory Store backed by a simple map.
// Useful for unit tests and short-lived processes.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte // key -> JSON bytes
	watchers []*watcher
}

// NewMemoryStore creates a ready-to-use in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// ---------- CRUD ----------

func (m *MemoryStore) Create(key string, value interface{}) error {
	return m.Txn(func(tx Tx) error {
		return tx.Create(key, value)
	})
}

func (m *MemoryStore) Get(key string, target interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, target)
}

func (m *MemoryStore) Update(key string, value interface{}) error {
	return m.Txn(func(tx Tx) error {
		return tx.Update(key, value)
	})
}

func (m *MemoryStore) Delete(key string) error {
	return m.Txn(func(tx Tx) error {
		return tx.Delete(key)
	})
}

// ---------- List ----------

func (m *MemoryStore) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return listSorted(m.data, nil, prefix, factory)
}

// listSorted decodes every key under prefix from base, with staged entries
// taking precedence, in key order. A nil staged entry is a pending delete.
func listSorted(base, staged map[string][]byte, prefix string, factory func() interface{}) ([]interface{}, error) {
	keys := lo.Filter(lo.Union(lo.Keys(base), lo.Keys(staged)), func(k string, _ int) bool {
		return strings.HasPrefix(k, prefix)
	})
	sort.Strings(keys)

	results := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		raw, ok := staged[k]
		if !ok {
			raw = base[k]
		}
		if raw == nil {
			continue
		}
		obj := factory()
		if err := json.Unmarshal(raw, obj); err != nil {
			return nil, err
		}
		results = append(results, obj)
	}
	return results, nil
}

// ---------- Txn ----------

func (m *MemoryStore) Txn(fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{base: m.data, staged: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}

	for k, raw := range tx.staged {
		if raw == nil {
			delete(m.data, k)
			continue
		}
		m.data[k] = raw
	}
	for _, evt := range tx.events {
		m.notify(evt)
	}
	return nil
}

// memoryTx stages writes until the enclosing Txn succeeds. Deletes are
// staged as nil values.
type memoryTx struct {
	base   map[string][]byte
	staged map[string][]byte
	events []v1alpha1.WatchEvent
}

func (t *memoryTx) lookup(key string) ([]byte, bool) {
	if raw, ok := t.staged[key]; ok {
		return raw, raw != nil
	}
	raw, ok := t.base[key]
	return raw, ok
}

func (t *memoryTx) Get(key string, target interface{}) error {
	raw, ok := t.lookup(key)
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, target)
}

func (t *memoryTx) List(prefix string, factory func() interface{}) ([]interface{}, error) {
	return listSorted(t.base, t.staged, prefix, factory)
}

func (t *memoryTx) Create(key string, value interface{}) error {
	if _, exists := t.lookup(key); exists {
		return ErrAlreadyExists
	}
	return t.put(key, value, v1alpha1.EventAdded)
}

func (t *memoryTx) Update(key string, value interface{}) error {
	if _, exists := t.lookup(key); !exists {
		return ErrNotFound
	}
	return t.put(key, value, v1alpha1.EventModified)
}

func (t *memoryTx) Delete(key string) error {
	raw, exists := t.lookup(key)
	if !exists {
		return ErrNotFound
	}
	t.staged[key] = nil

	// Deserialise the old value so watchers receive the deleted object.
	var obj interface{}
	_ = json.Unmarshal(raw, &obj)
	t.events = append(t.events, v1alpha1.WatchEvent{
		Type:   v1alpha1.EventDeleted,
		Kind:   kindFromKey(key),
		Key:    key,
		Object: obj,
	})
	return nil
}

func (t *memoryTx) put(key string, value interface{}, typ v1alpha1.EventType) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	t.staged[key] = raw
	t.events = append(t.events, v1alpha1.WatchEvent{
		Type:   typ,
		Kind:   kindFromKey(key),
		Key:    key,
		Object: value,
	})
	return nil
}

// ---------- Watch ----------

func (m *MemoryStore) Watch(prefix string) (<-chan v1alpha1.WatchEvent, func()) {
	w := &watcher{
		prefix: prefix,
		ch:     make(chan v1alpha1.WatchEvent, 64),
	}

	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.watchers = removeWatcher(m.watchers, w)
	}

	return w.ch, cancel
}

// ---------- Close ----------

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.watchers {
		close(w.ch)
	}
	m.watchers = nil
	m.data = make(map[string][]byte)
	return nil
}

// ---------- internal ----------

// notify sends the event to every watcher whose prefix matches.
// Callers hold m.mu.
func (m *MemoryStore) notify(evt v1alpha1.WatchEvent) {
	broadcast(m.watchers, evt)
}

func broadcast(watchers []*watcher, evt v1alpha1.WatchEvent) {
	for _, w := range watchers {
		if strings.HasPrefix(evt.Key, w.prefix) {
			select {
			case w.ch <- evt:
			default:
				// Drop event if the watcher is not consuming fast enough.
			}
		}
	}
}

// removeWatcher drops w from the list and closes its channel. It is a no-op
// when w was already removed, e.g. by Close.
func removeWatcher(watchers []*watcher, w *watcher) []*watcher {
	for i, existing := range watchers {
		if existing == w {
			close(w.ch)
			return append(watchers[:i], watchers[i+1:]...)
		}
	}
	return watchers
}

// kindFromKey extracts the Kind segment from a "/{kind}/{name}" key.
func kindFromKey(key string) string {
	parts := strings.SplitN(strings.TrimPrefix(key, "/"), "/", 2)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

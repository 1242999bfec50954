// Package store provides persistence for Hostel resources.
//
// Keys follow the convention "/{kind}/{name}". Values are stored as JSON.
package store

import (
	"fmt"
	"strings"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// Store is the persistence interface for all Hostel resources.
type Store interface {
	// Create stores a new object at the given key.
	// Returns ErrAlreadyExists if the key already exists.
	Create(key string, value interface{}) error

	// Get retrieves the object stored at key and deserialises it into target.
	// Returns ErrNotFound if the key does not exist.
	Get(key string, target interface{}) error

	// Update replaces the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Update(key string, value interface{}) error

	// Delete removes the object at the given key.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns every object whose key starts with prefix, ordered by key.
	// factory is called once per result to create a zero-value pointer that
	// the stored JSON is unmarshalled into.
	List(prefix string, factory func() interface{}) ([]interface{}, error)

	// Txn runs fn with exclusive write access. Writes made through tx are
	// applied together when fn returns nil and discarded otherwise. Watch
	// events are emitted after the writes are applied.
	Txn(fn func(tx Tx) error) error

	// Watch returns a channel that emits events for every mutation whose key
	// starts with prefix. The returned cancel function removes the watcher
	// and closes the channel.
	Watch(prefix string) (<-chan v1alpha1.WatchEvent, func())

	// Close releases any resources held by the store (e.g. BoltDB file handle).
	Close() error
}

// Tx is the view of the store inside Txn. Reads observe the transaction's
// own uncommitted writes.
type Tx interface {
	Get(key string, target interface{}) error
	List(prefix string, factory func() interface{}) ([]interface{}, error)
	Create(key string, value interface{}) error
	Update(key string, value interface{}) error
	Delete(key string) error
}

// Common sentinel errors.
var (
	ErrAlreadyExists = fmt.Errorf("key already exists")
	ErrNotFound      = fmt.Errorf("key not found")
	ErrInvalid       = fmt.Errorf("invalid resource")
)

// Allocation sentinel errors.
var (
	ErrRoomFull         = fmt.Errorf("room is at capacity")
	ErrRoomUnavailable  = fmt.Errorf("room is not available")
	ErrRoomOccupied     = fmt.Errorf("room has active occupants")
	ErrAlreadyAllocated = fmt.Errorf("student already has an active allocation")
	ErrNoPreferences    = fmt.Errorf("student has not submitted preferences")
	ErrNotActive        = fmt.Errorf("allocation is not active")

	// ErrRoomNotFound is returned by CommitAllocation when the room is gone.
	// It matches ErrNotFound.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)
)

// ResourceKey builds a canonical store key for a resource.
//
//	ResourceKey("Room", "A101")
//	=> "/Room/A101"
func ResourceKey(kind, name string) string {
	return fmt.Sprintf("/%s/%s", kind, name)
}

// KindPrefix returns the key prefix shared by every resource of kind.
func KindPrefix(kind string) string {
	return "/" + kind + "/"
}

// SplitKey is the inverse of ResourceKey. It returns empty strings for keys
// that do not have the "/{kind}/{name}" shape.
func SplitKey(key string) (kind, name string) {
	kind, name, ok := strings.Cut(strings.TrimPrefix(key, "/"), "/")
	if !ok || kind == "" || name == "" {
		return "", ""
	}
	return kind, name
}

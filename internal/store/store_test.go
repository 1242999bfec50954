package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// backends runs fn once against each Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})

	t.Run("bolt", func(t *testing.T) {
		s, err := NewBoltStore(filepath.Join(t.TempDir(), "hostel.db"))
		if err != nil {
			t.Fatalf("NewBoltStore returned unexpected error: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

// newTestRoom creates a Room for testing with the given number and capacity.
func newTestRoom(name string, capacity int) *v1alpha1.Room {
	return &v1alpha1.Room{
		TypeMeta: v1alpha1.TypeMeta{
			APIVersion: v1alpha1.APIVersion,
			Kind:       v1alpha1.KindRoom,
		},
		Metadata: v1alpha1.ObjectMeta{Name: name},
		Spec:     v1alpha1.RoomSpec{Capacity: capacity},
	}
}

func TestCreate(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		key := ResourceKey(v1alpha1.KindRoom, "A101")
		if err := s.Create(key, newTestRoom("A101", 2)); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}

		var got v1alpha1.Room
		if err := s.Get(key, &got); err != nil {
			t.Fatalf("unexpected error on Get after Create: %v", err)
		}
		if got.Metadata.Name != "A101" {
			t.Errorf("expected name A101, got %s", got.Metadata.Name)
		}
		if got.Spec.Capacity != 2 {
			t.Errorf("expected capacity 2, got %d", got.Spec.Capacity)
		}
	})
}

func TestCreateDuplicate(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		key := ResourceKey(v1alpha1.KindRoom, "dup")
		if err := s.Create(key, newTestRoom("dup", 2)); err != nil {
			t.Fatalf("unexpected error on first Create: %v", err)
		}

		err := s.Create(key, newTestRoom("dup", 3))
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestGetNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		var got v1alpha1.Room
		err := s.Get(ResourceKey(v1alpha1.KindRoom, "nonexistent"), &got)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		key := ResourceKey(v1alpha1.KindRoom, "B101")
		if err := s.Create(key, newTestRoom("B101", 3)); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}

		updated := newTestRoom("B101", 4)
		updated.Spec.Building = "Block B"
		if err := s.Update(key, updated); err != nil {
			t.Fatalf("unexpected error on Update: %v", err)
		}

		var got v1alpha1.Room
		if err := s.Get(key, &got); err != nil {
			t.Fatalf("unexpected error on Get after Update: %v", err)
		}
		if got.Spec.Capacity != 4 {
			t.Errorf("expected capacity 4 after update, got %d", got.Spec.Capacity)
		}
		if got.Spec.Building != "Block B" {
			t.Errorf("expected building Block B after update, got %q", got.Spec.Building)
		}
	})
}

func TestUpdateNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		err := s.Update(ResourceKey(v1alpha1.KindRoom, "ghost"), newTestRoom("ghost", 1))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		key := ResourceKey(v1alpha1.KindRoom, "gone")
		if err := s.Create(key, newTestRoom("gone", 1)); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}
		if err := s.Delete(key); err != nil {
			t.Fatalf("unexpected error on Delete: %v", err)
		}

		var got v1alpha1.Room
		if err := s.Get(key, &got); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after Delete, got %v", err)
		}
		if err := s.Delete(key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second Delete, got %v", err)
		}
	})
}

func TestList(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		// Insert out of order; List must return key order.
		for _, name := range []string{"C101", "A101", "B201", "A102"} {
			if err := s.Create(ResourceKey(v1alpha1.KindRoom, name), newTestRoom(name, 2)); err != nil {
				t.Fatalf("unexpected error creating %s: %v", name, err)
			}
		}
		if err := s.Create(ResourceKey(v1alpha1.KindStudent, "s-1"), &v1alpha1.Student{}); err != nil {
			t.Fatalf("unexpected error creating student: %v", err)
		}

		factory := func() interface{} { return &v1alpha1.Room{} }

		t.Run("rooms in key order", func(t *testing.T) {
			results, err := s.List(KindPrefix(v1alpha1.KindRoom), factory)
			if err != nil {
				t.Fatalf("unexpected error on List: %v", err)
			}
			want := []string{"A101", "A102", "B201", "C101"}
			if len(results) != len(want) {
				t.Fatalf("expected %d results, got %d", len(want), len(results))
			}
			for i, r := range results {
				room, ok := r.(*v1alpha1.Room)
				if !ok {
					t.Fatal("expected result to be *v1alpha1.Room")
				}
				if room.Metadata.Name != want[i] {
					t.Errorf("result %d: expected %s, got %s", i, want[i], room.Metadata.Name)
				}
			}
		})

		t.Run("narrow prefix", func(t *testing.T) {
			results, err := s.List(ResourceKey(v1alpha1.KindRoom, "A"), factory)
			if err != nil {
				t.Fatalf("unexpected error on List: %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("expected 2 results for block A, got %d", len(results))
			}
		})

		t.Run("no matching prefix", func(t *testing.T) {
			results, err := s.List("/NonExistentKind/", factory)
			if err != nil {
				t.Fatalf("unexpected error on List: %v", err)
			}
			if len(results) != 0 {
				t.Fatalf("expected 0 results, got %d", len(results))
			}
		})
	})
}

func TestTxnCommitsTogether(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		keyA := ResourceKey(v1alpha1.KindRoom, "A101")
		if err := s.Create(keyA, newTestRoom("A101", 2)); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}

		err := s.Txn(func(tx Tx) error {
			var r v1alpha1.Room
			if err := tx.Get(keyA, &r); err != nil {
				return err
			}
			r.Status.Occupied = 1
			if err := tx.Update(keyA, &r); err != nil {
				return err
			}
			if err := tx.Create(ResourceKey(v1alpha1.KindRoom, "A102"), newTestRoom("A102", 2)); err != nil {
				return err
			}

			// Reads inside the transaction see its own writes.
			var again v1alpha1.Room
			if err := tx.Get(keyA, &again); err != nil {
				return err
			}
			if again.Status.Occupied != 1 {
				t.Errorf("expected staged occupancy 1, got %d", again.Status.Occupied)
			}
			items, err := tx.List(KindPrefix(v1alpha1.KindRoom), func() interface{} { return &v1alpha1.Room{} })
			if err != nil {
				return err
			}
			if len(items) != 2 {
				t.Errorf("expected 2 rooms inside txn, got %d", len(items))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Txn returned unexpected error: %v", err)
		}

		var got v1alpha1.Room
		if err := s.Get(keyA, &got); err != nil {
			t.Fatalf("unexpected error on Get: %v", err)
		}
		if got.Status.Occupied != 1 {
			t.Errorf("expected occupancy 1 after commit, got %d", got.Status.Occupied)
		}
		if err := s.Get(ResourceKey(v1alpha1.KindRoom, "A102"), &got); err != nil {
			t.Errorf("expected A102 to exist after commit: %v", err)
		}
	})
}

func TestTxnRollsBack(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		keyA := ResourceKey(v1alpha1.KindRoom, "A101")
		if err := s.Create(keyA, newTestRoom("A101", 2)); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}

		ch, cancel := s.Watch(KindPrefix(v1alpha1.KindRoom))
		defer cancel()

		boom := errors.New("boom")
		err := s.Txn(func(tx Tx) error {
			if err := tx.Create(ResourceKey(v1alpha1.KindRoom, "A102"), newTestRoom("A102", 2)); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom from Txn, got %v", err)
		}

		var got v1alpha1.Room
		if err := s.Get(ResourceKey(v1alpha1.KindRoom, "A102"), &got); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected A102 to be rolled back, got %v", err)
		}

		select {
		case evt := <-ch:
			t.Fatalf("unexpected event from rolled back txn: %+v", evt)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestTxnDelete(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		keyA := ResourceKey(v1alpha1.KindRoom, "A101")
		keyB := ResourceKey(v1alpha1.KindRoom, "A102")
		for _, r := range []*v1alpha1.Room{newTestRoom("A101", 2), newTestRoom("A102", 2)} {
			if err := s.Create(ResourceKey(v1alpha1.KindRoom, r.Metadata.Name), r); err != nil {
				t.Fatalf("unexpected error on Create: %v", err)
			}
		}

		// A failed transaction keeps the key.
		boom := errors.New("boom")
		err := s.Txn(func(tx Tx) error {
			if err := tx.Delete(keyA); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom from Txn, got %v", err)
		}
		var got v1alpha1.Room
		if err := s.Get(keyA, &got); err != nil {
			t.Fatalf("expected A101 to survive the rollback: %v", err)
		}

		ch, cancel := s.Watch(KindPrefix(v1alpha1.KindRoom))
		defer cancel()

		err = s.Txn(func(tx Tx) error {
			if err := tx.Delete(keyA); err != nil {
				return err
			}
			if err := tx.Delete(keyA); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound on second Delete in txn, got %v", err)
			}

			// Reads inside the transaction no longer see the key.
			var r v1alpha1.Room
			if err := tx.Get(keyA, &r); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound inside txn, got %v", err)
			}
			items, err := tx.List(KindPrefix(v1alpha1.KindRoom), func() interface{} { return &v1alpha1.Room{} })
			if err != nil {
				return err
			}
			if len(items) != 1 || items[0].(*v1alpha1.Room).Metadata.Name != "A102" {
				t.Errorf("expected only A102 inside txn, got %d rooms", len(items))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Txn returned unexpected error: %v", err)
		}

		if err := s.Get(keyA, &got); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after commit, got %v", err)
		}
		if err := s.Get(keyB, &got); err != nil {
			t.Fatalf("expected A102 to be untouched: %v", err)
		}

		select {
		case evt := <-ch:
			if evt.Type != v1alpha1.EventDeleted || evt.Key != keyA {
				t.Errorf("expected DELETED event for %s, got %s %s", keyA, evt.Type, evt.Key)
			}
			if evt.Object == nil {
				t.Error("expected the deleted object on the event")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for DELETED event")
		}
	})
}

func TestWatch(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ch, cancel := s.Watch(KindPrefix(v1alpha1.KindRoom))
		defer cancel()

		key := ResourceKey(v1alpha1.KindRoom, "W1")

		// --- Create ---
		if err := s.Create(key, newTestRoom("W1", 2)); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}
		evt := receiveEvent(t, ch, 2*time.Second)
		if evt.Type != v1alpha1.EventAdded {
			t.Errorf("expected event type ADDED, got %s", evt.Type)
		}
		if evt.Key != key {
			t.Errorf("expected event key %s, got %s", key, evt.Key)
		}
		if evt.Kind != v1alpha1.KindRoom {
			t.Errorf("expected event kind Room, got %s", evt.Kind)
		}

		// --- Update ---
		if err := s.Update(key, newTestRoom("W1", 3)); err != nil {
			t.Fatalf("unexpected error on Update: %v", err)
		}
		evt = receiveEvent(t, ch, 2*time.Second)
		if evt.Type != v1alpha1.EventModified {
			t.Errorf("expected event type MODIFIED, got %s", evt.Type)
		}

		// --- Delete ---
		if err := s.Delete(key); err != nil {
			t.Fatalf("unexpected error on Delete: %v", err)
		}
		evt = receiveEvent(t, ch, 2*time.Second)
		if evt.Type != v1alpha1.EventDeleted {
			t.Errorf("expected event type DELETED, got %s", evt.Type)
		}
	})
}

func TestWatchPrefixFiltering(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ch, cancel := s.Watch(KindPrefix(v1alpha1.KindRoom))
		defer cancel()

		// A student write must not reach the room watcher.
		if err := s.Create(ResourceKey(v1alpha1.KindStudent, "s-1"), &v1alpha1.Student{}); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}

		select {
		case got := <-ch:
			t.Fatalf("unexpected event for room watcher: %+v", got)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestWatchCancel(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ch, cancel := s.Watch(KindPrefix(v1alpha1.KindRoom))
		cancel()

		select {
		case _, ok := <-ch:
			if ok {
				t.Fatal("expected channel to be closed after cancel, but received a value")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for channel to close after cancel")
		}

		// A second cancel and later mutations must not panic.
		cancel()
		if err := s.Create(ResourceKey(v1alpha1.KindRoom, "late"), newTestRoom("late", 1)); err != nil {
			t.Fatalf("unexpected error on Create after cancel: %v", err)
		}
	})
}

func TestResourceKey(t *testing.T) {
	tests := []struct {
		kind string
		name string
		want string
	}{
		{v1alpha1.KindStudent, "s-1001", "/Student/s-1001"},
		{v1alpha1.KindRoom, "A101", "/Room/A101"},
		{v1alpha1.KindAllocation, "3f1c", "/Allocation/3f1c"},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			got := ResourceKey(tc.kind, tc.name)
			if got != tc.want {
				t.Errorf("ResourceKey(%q, %q) = %q, want %q", tc.kind, tc.name, got, tc.want)
			}
			if k := kindFromKey(got); k != tc.kind {
				t.Errorf("kindFromKey(%q) = %q, want %q", got, k, tc.kind)
			}
			if k, n := SplitKey(got); k != tc.kind || n != tc.name {
				t.Errorf("SplitKey(%q) = (%q, %q), want (%q, %q)", got, k, n, tc.kind, tc.name)
			}
		})
	}
}

func TestSplitKeyMalformed(t *testing.T) {
	for _, key := range []string{"", "/", "/Room", "/Room/", "Room"} {
		if k, n := SplitKey(key); k != "" || n != "" {
			t.Errorf("SplitKey(%q) = (%q, %q), want empty", key, k, n)
		}
	}
}

func TestMemoryClose(t *testing.T) {
	s := NewMemoryStore()

	key := ResourceKey(v1alpha1.KindRoom, "close")
	if err := s.Create(key, newTestRoom("close", 1)); err != nil {
		t.Fatalf("unexpected error on Create: %v", err)
	}
	ch, cancel := s.Watch(KindPrefix(v1alpha1.KindRoom))

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected watcher channel to be closed after store Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher channel to close after store Close")
	}
	// Cancelling after Close is a no-op.
	cancel()

	var got v1alpha1.Room
	if err := s.Get(key, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after Close, got %v", err)
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostel.db")

	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore returned unexpected error: %v", err)
	}
	key := ResourceKey(v1alpha1.KindRoom, "A101")
	if err := s.Create(key, newTestRoom("A101", 2)); err != nil {
		t.Fatalf("unexpected error on Create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on Close: %v", err)
	}

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopening bolt store: %v", err)
	}
	defer s.Close()

	var got v1alpha1.Room
	if err := s.Get(key, &got); err != nil {
		t.Fatalf("expected A101 after reopen, got %v", err)
	}
	if got.Spec.Capacity != 2 {
		t.Errorf("expected capacity 2, got %d", got.Spec.Capacity)
	}
}

// ---------- helpers ----------

// receiveEvent reads a single event from ch with a timeout. It fails the test
// if no event is received within the deadline.
func receiveEvent(t *testing.T, ch <-chan v1alpha1.WatchEvent, timeout time.Duration) v1alpha1.WatchEvent {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(timeout):
		t.Fatal("timed out waiting for watch event")
		return v1alpha1.WatchEvent{} // unreachable, satisfies compiler
	}
}

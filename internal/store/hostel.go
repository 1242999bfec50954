package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/klubi/hostel/internal/compat"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// Hostel is the domain repository over a Store. It owns every write that
// touches more than one record, so room occupancy and student status stay in
// step with the allocation records.
type Hostel struct {
	store Store
	now   func() time.Time
}

// NewHostel wraps s.
func NewHostel(s Store) *Hostel {
	return &Hostel{store: s, now: time.Now}
}

// WithClock replaces the time source used for timestamps.
func (h *Hostel) WithClock(now func() time.Time) *Hostel {
	h.now = now
	return h
}

// Store returns the underlying store, e.g. for watches.
func (h *Hostel) Store() Store {
	return h.store
}

// AllocationFilter narrows ListAllocations. Empty fields match everything.
type AllocationFilter struct {
	Phase   v1alpha1.AllocationPhase
	Room    string
	Student string
}

func (f AllocationFilter) matches(a *v1alpha1.Allocation) bool {
	return (f.Phase == "" || a.Status.Phase == f.Phase) &&
		(f.Room == "" || a.Spec.Room == f.Room) &&
		(f.Student == "" || a.Spec.Student == f.Student)
}

// lister is satisfied by both Store and Tx.
type lister interface {
	List(prefix string, factory func() interface{}) ([]interface{}, error)
}

func listKind[T any](l lister, kind string) ([]T, error) {
	items, err := l.List(KindPrefix(kind), func() interface{} { return new(T) })
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", kind, err)
	}
	return lo.Map(items, func(item interface{}, _ int) T {
		return *item.(*T)
	}), nil
}

// ---------- Students ----------

// validatePreferences rejects answers keyed by names that are not scored
// attributes.
func validatePreferences(p *v1alpha1.Preferences) error {
	if p == nil {
		return nil
	}
	if unknown := compat.UnknownAttributes(p.Values); len(unknown) > 0 {
		return fmt.Errorf("unknown preference attributes %v: %w", unknown, ErrInvalid)
	}
	return nil
}

// CreateStudent registers a new student. The registration timestamp defaults
// to now and any supplied status is discarded.
func (h *Hostel) CreateStudent(_ context.Context, st *v1alpha1.Student) error {
	if st.Metadata.Name == "" {
		return fmt.Errorf("student name is required: %w", ErrInvalid)
	}
	if err := validatePreferences(st.Spec.Preferences); err != nil {
		return fmt.Errorf("student %s: %w", st.Metadata.Name, err)
	}
	now := h.now().UTC()
	st.APIVersion = v1alpha1.APIVersion
	st.Kind = v1alpha1.KindStudent
	st.Metadata.UID = uuid.New().String()
	if st.Metadata.CreatedAt.IsZero() {
		st.Metadata.CreatedAt = now
	}
	st.Metadata.UpdatedAt = now
	st.Status = v1alpha1.StudentStatus{}
	if st.Spec.Preferences != nil && st.Spec.Preferences.SubmittedAt.IsZero() {
		st.Spec.Preferences.SubmittedAt = now
	}

	if err := h.store.Create(ResourceKey(v1alpha1.KindStudent, st.Metadata.Name), st); err != nil {
		return fmt.Errorf("creating student %s: %w", st.Metadata.Name, err)
	}
	return nil
}

// GetStudent returns the named student.
func (h *Hostel) GetStudent(_ context.Context, name string) (*v1alpha1.Student, error) {
	var st v1alpha1.Student
	if err := h.store.Get(ResourceKey(v1alpha1.KindStudent, name), &st); err != nil {
		return nil, fmt.Errorf("getting student %s: %w", name, err)
	}
	return &st, nil
}

// ListStudents returns all students ordered by name.
func (h *Hostel) ListStudents(_ context.Context) ([]v1alpha1.Student, error) {
	return listKind[v1alpha1.Student](h.store, v1alpha1.KindStudent)
}

// UpdateStudent replaces the spec and labels of an existing student. Identity,
// registration time and allocation status are preserved.
func (h *Hostel) UpdateStudent(_ context.Context, st *v1alpha1.Student) (*v1alpha1.Student, error) {
	if err := validatePreferences(st.Spec.Preferences); err != nil {
		return nil, fmt.Errorf("updating student %s: %w", st.Metadata.Name, err)
	}
	key := ResourceKey(v1alpha1.KindStudent, st.Metadata.Name)
	var out v1alpha1.Student

	err := h.store.Txn(func(tx Tx) error {
		if err := tx.Get(key, &out); err != nil {
			return err
		}
		now := h.now().UTC()
		out.Metadata.Labels = st.Metadata.Labels
		out.Metadata.UpdatedAt = now
		out.Spec = st.Spec
		if p := out.Spec.Preferences; p != nil && p.SubmittedAt.IsZero() {
			p.SubmittedAt = now
		}
		return tx.Update(key, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("updating student %s: %w", st.Metadata.Name, err)
	}
	return &out, nil
}

// SetPreferences stores a student's questionnaire answers, replacing any
// earlier submission.
func (h *Hostel) SetPreferences(_ context.Context, name string, prefs *v1alpha1.Preferences) (*v1alpha1.Student, error) {
	if err := validatePreferences(prefs); err != nil {
		return nil, fmt.Errorf("setting preferences for %s: %w", name, err)
	}
	key := ResourceKey(v1alpha1.KindStudent, name)
	var out v1alpha1.Student

	err := h.store.Txn(func(tx Tx) error {
		if err := tx.Get(key, &out); err != nil {
			return err
		}
		now := h.now().UTC()
		p := *prefs
		p.SubmittedAt = now
		out.Spec.Preferences = &p
		out.Metadata.UpdatedAt = now
		return tx.Update(key, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("setting preferences for %s: %w", name, err)
	}
	return &out, nil
}

// DeleteStudent removes a student that holds no room. The check and the
// delete run in one transaction, so a concurrent allocation cannot slip in
// between them.
func (h *Hostel) DeleteStudent(_ context.Context, name string) error {
	key := ResourceKey(v1alpha1.KindStudent, name)
	err := h.store.Txn(func(tx Tx) error {
		var st v1alpha1.Student
		if err := tx.Get(key, &st); err != nil {
			return err
		}
		if st.IsAllocated() {
			return ErrAlreadyAllocated
		}
		return tx.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("deleting student %s: %w", name, err)
	}
	return nil
}

// ---------- Rooms ----------

func validateRoom(r *v1alpha1.Room) error {
	if r.Metadata.Name == "" {
		return fmt.Errorf("room number is required: %w", ErrInvalid)
	}
	if r.Spec.Capacity < 1 {
		return fmt.Errorf("room %s: capacity must be at least 1: %w", r.Metadata.Name, ErrInvalid)
	}
	switch r.Status.Phase {
	case "", v1alpha1.RoomAvailable, v1alpha1.RoomMaintenance:
	default:
		return fmt.Errorf("room %s: unknown phase %q: %w", r.Metadata.Name, r.Status.Phase, ErrInvalid)
	}
	return nil
}

// CreateRoom adds an empty room.
func (h *Hostel) CreateRoom(_ context.Context, r *v1alpha1.Room) error {
	if err := validateRoom(r); err != nil {
		return err
	}
	now := h.now().UTC()
	r.APIVersion = v1alpha1.APIVersion
	r.Kind = v1alpha1.KindRoom
	r.Metadata.UID = uuid.New().String()
	r.Metadata.CreatedAt = now
	r.Metadata.UpdatedAt = now
	if r.Status.Phase == "" {
		r.Status.Phase = v1alpha1.RoomAvailable
	}
	r.Status.Occupied = 0
	r.Status.Occupants = nil

	if err := h.store.Create(ResourceKey(v1alpha1.KindRoom, r.Metadata.Name), r); err != nil {
		return fmt.Errorf("creating room %s: %w", r.Metadata.Name, err)
	}
	return nil
}

// GetRoom returns the named room.
func (h *Hostel) GetRoom(_ context.Context, name string) (*v1alpha1.Room, error) {
	var r v1alpha1.Room
	if err := h.store.Get(ResourceKey(v1alpha1.KindRoom, name), &r); err != nil {
		return nil, fmt.Errorf("getting room %s: %w", name, err)
	}
	return &r, nil
}

// ListRooms returns all rooms ordered by room number.
func (h *Hostel) ListRooms(_ context.Context) ([]v1alpha1.Room, error) {
	return listKind[v1alpha1.Room](h.store, v1alpha1.KindRoom)
}

// UpdateRoom replaces a room's spec, labels and phase. Occupancy is owned by
// the allocation path and cannot be set here; capacity may not drop below
// the current occupancy.
func (h *Hostel) UpdateRoom(_ context.Context, r *v1alpha1.Room) (*v1alpha1.Room, error) {
	if err := validateRoom(r); err != nil {
		return nil, err
	}
	key := ResourceKey(v1alpha1.KindRoom, r.Metadata.Name)
	var out v1alpha1.Room

	err := h.store.Txn(func(tx Tx) error {
		if err := tx.Get(key, &out); err != nil {
			return err
		}
		if r.Spec.Capacity < out.Status.Occupied {
			return fmt.Errorf("capacity %d is below occupancy %d: %w", r.Spec.Capacity, out.Status.Occupied, ErrInvalid)
		}
		out.Metadata.Labels = r.Metadata.Labels
		out.Metadata.UpdatedAt = h.now().UTC()
		out.Spec = r.Spec
		if r.Status.Phase != "" {
			out.Status.Phase = r.Status.Phase
		}
		return tx.Update(key, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("updating room %s: %w", r.Metadata.Name, err)
	}
	return &out, nil
}

// DeleteRoom removes a room with no active occupants.
func (h *Hostel) DeleteRoom(_ context.Context, name string) error {
	key := ResourceKey(v1alpha1.KindRoom, name)
	err := h.store.Txn(func(tx Tx) error {
		var r v1alpha1.Room
		if err := tx.Get(key, &r); err != nil {
			return err
		}
		if r.Status.Occupied > 0 {
			return ErrRoomOccupied
		}
		return tx.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", name, err)
	}
	return nil
}

// ---------- Allocations ----------

// GetAllocation returns the named allocation record.
func (h *Hostel) GetAllocation(_ context.Context, name string) (*v1alpha1.Allocation, error) {
	var a v1alpha1.Allocation
	if err := h.store.Get(ResourceKey(v1alpha1.KindAllocation, name), &a); err != nil {
		return nil, fmt.Errorf("getting allocation %s: %w", name, err)
	}
	return &a, nil
}

// ListAllocations returns matching allocations ordered by allocation time.
func (h *Hostel) ListAllocations(_ context.Context, f AllocationFilter) ([]v1alpha1.Allocation, error) {
	all, err := listKind[v1alpha1.Allocation](h.store, v1alpha1.KindAllocation)
	if err != nil {
		return nil, err
	}
	out := lo.Filter(all, func(a v1alpha1.Allocation, _ int) bool { return f.matches(&a) })
	sortByAllocatedAt(out)
	return out, nil
}

func sortByAllocatedAt(allocs []v1alpha1.Allocation) {
	sort.SliceStable(allocs, func(i, j int) bool {
		return allocs[i].Status.AllocatedAt.Before(allocs[j].Status.AllocatedAt)
	})
}

// UnallocatedStudents returns students that have submitted preferences and
// hold no Active allocation, ordered by name.
func (h *Hostel) UnallocatedStudents(ctx context.Context) ([]v1alpha1.Student, error) {
	students, err := h.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(students, func(s v1alpha1.Student, _ int) bool {
		return s.HasPreferences() && !s.IsAllocated()
	}), nil
}

// RoomsWithCapacity returns available rooms below capacity, least occupied
// first. Ties keep room-number order.
func (h *Hostel) RoomsWithCapacity(ctx context.Context) ([]v1alpha1.Room, error) {
	rooms, err := h.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	open := lo.Filter(rooms, func(r v1alpha1.Room, _ int) bool {
		return r.IsAvailable() && r.Status.Occupied < r.Spec.Capacity
	})
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Status.Occupied < open[j].Status.Occupied
	})
	return open, nil
}

// Occupants returns the students actively allocated to room, in allocation
// order. Occupants whose student record has gone are left out.
func (h *Hostel) Occupants(ctx context.Context, room string) ([]v1alpha1.Student, error) {
	r, err := h.GetRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	out := make([]v1alpha1.Student, 0, len(r.Status.Occupants))
	for _, name := range r.Status.Occupants {
		var st v1alpha1.Student
		err := h.store.Get(ResourceKey(v1alpha1.KindStudent, name), &st)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading occupant %s of %s: %w", name, room, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// CommitAllocation records an Active allocation of student to room and bumps
// the room's occupancy. Capacity and the one-active-allocation rule are
// checked inside the same transaction as the writes.
func (h *Hostel) CommitAllocation(_ context.Context, student, room string, score float64, at time.Time) (*v1alpha1.Allocation, error) {
	alloc := &v1alpha1.Allocation{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion, Kind: v1alpha1.KindAllocation},
		Metadata: v1alpha1.ObjectMeta{
			Name:      uuid.New().String(),
			UID:       uuid.New().String(),
			CreatedAt: at.UTC(),
			UpdatedAt: at.UTC(),
			Labels:    map[string]string{"room": room, "student": student},
		},
		Spec: v1alpha1.AllocationSpec{Student: student, Room: room, Score: score},
		Status: v1alpha1.AllocationStatus{
			Phase:       v1alpha1.AllocationActive,
			AllocatedAt: at.UTC(),
		},
	}

	err := h.store.Txn(func(tx Tx) error {
		studentKey := ResourceKey(v1alpha1.KindStudent, student)
		roomKey := ResourceKey(v1alpha1.KindRoom, room)

		var st v1alpha1.Student
		if err := tx.Get(studentKey, &st); err != nil {
			return fmt.Errorf("student %s: %w", student, err)
		}
		if st.IsAllocated() {
			return ErrAlreadyAllocated
		}
		if !st.HasPreferences() {
			return ErrNoPreferences
		}

		var r v1alpha1.Room
		switch err := tx.Get(roomKey, &r); {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			return ErrRoomNotFound
		default:
			return fmt.Errorf("room %s: %w", room, err)
		}
		if !r.IsAvailable() {
			return ErrRoomUnavailable
		}
		if r.Status.Occupied >= r.Spec.Capacity {
			return ErrRoomFull
		}

		if err := tx.Create(ResourceKey(v1alpha1.KindAllocation, alloc.Metadata.Name), alloc); err != nil {
			return err
		}

		r.Status.Occupied++
		r.Status.Occupants = append(r.Status.Occupants, student)
		r.Metadata.UpdatedAt = at.UTC()
		if err := tx.Update(roomKey, &r); err != nil {
			return err
		}

		st.Status = v1alpha1.StudentStatus{Room: room, Allocation: alloc.Metadata.Name}
		st.Metadata.UpdatedAt = at.UTC()
		return tx.Update(studentKey, &st)
	})
	if err != nil {
		return nil, fmt.Errorf("allocating %s to %s: %w", student, room, err)
	}
	return alloc, nil
}

// Release marks an Active allocation Inactive and frees its place in the
// room. The record itself is kept.
func (h *Hostel) Release(_ context.Context, name string, at time.Time) (*v1alpha1.Allocation, error) {
	var alloc v1alpha1.Allocation

	err := h.store.Txn(func(tx Tx) error {
		allocKey := ResourceKey(v1alpha1.KindAllocation, name)
		if err := tx.Get(allocKey, &alloc); err != nil {
			return err
		}
		if !alloc.IsActive() {
			return ErrNotActive
		}
		alloc.Status.Phase = v1alpha1.AllocationInactive
		alloc.Status.ReleasedAt = at.UTC()
		alloc.Metadata.UpdatedAt = at.UTC()
		if err := tx.Update(allocKey, &alloc); err != nil {
			return err
		}

		roomKey := ResourceKey(v1alpha1.KindRoom, alloc.Spec.Room)
		var r v1alpha1.Room
		switch err := tx.Get(roomKey, &r); {
		case err == nil:
			r.Status.Occupants = lo.Without(r.Status.Occupants, alloc.Spec.Student)
			r.Status.Occupied = max(r.Status.Occupied-1, 0)
			r.Metadata.UpdatedAt = at.UTC()
			if err := tx.Update(roomKey, &r); err != nil {
				return err
			}
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		studentKey := ResourceKey(v1alpha1.KindStudent, alloc.Spec.Student)
		var st v1alpha1.Student
		switch err := tx.Get(studentKey, &st); {
		case err == nil:
			if st.Status.Allocation != name {
				return nil
			}
			st.Status = v1alpha1.StudentStatus{}
			st.Metadata.UpdatedAt = at.UTC()
			return tx.Update(studentKey, &st)
		case errors.Is(err, ErrNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("releasing allocation %s: %w", name, err)
	}
	return &alloc, nil
}

// ReconcileRoom rebuilds a room's occupancy from its Active allocations and
// reports whether the stored status had drifted.
func (h *Hostel) ReconcileRoom(_ context.Context, name string) (bool, error) {
	changed := false

	err := h.store.Txn(func(tx Tx) error {
		roomKey := ResourceKey(v1alpha1.KindRoom, name)
		var r v1alpha1.Room
		if err := tx.Get(roomKey, &r); err != nil {
			return err
		}

		allocs, err := listKind[v1alpha1.Allocation](tx, v1alpha1.KindAllocation)
		if err != nil {
			return err
		}
		active := lo.Filter(allocs, func(a v1alpha1.Allocation, _ int) bool {
			return a.IsActive() && a.Spec.Room == name
		})
		sortByAllocatedAt(active)
		occupants := lo.Map(active, func(a v1alpha1.Allocation, _ int) string { return a.Spec.Student })

		if r.Status.Occupied == len(occupants) && equalStrings(r.Status.Occupants, occupants) {
			return nil
		}
		changed = true
		r.Status.Occupied = len(occupants)
		r.Status.Occupants = occupants
		r.Metadata.UpdatedAt = h.now().UTC()
		return tx.Update(roomKey, &r)
	})
	if err != nil {
		return false, fmt.Errorf("reconciling room %s: %w", name, err)
	}
	return changed, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------- Reporting ----------

// Roommates returns the other students sharing name's current room. A
// student without a room has no roommates.
func (h *Hostel) Roommates(ctx context.Context, name string) ([]v1alpha1.Student, error) {
	st, err := h.GetStudent(ctx, name)
	if err != nil {
		return nil, err
	}
	if !st.IsAllocated() {
		return []v1alpha1.Student{}, nil
	}
	occupants, err := h.Occupants(ctx, st.Status.Room)
	if err != nil {
		return nil, err
	}
	return lo.Filter(occupants, func(o v1alpha1.Student, _ int) bool {
		return o.Metadata.Name != name
	}), nil
}

// Stats summarises allocations and rooms.
func (h *Hostel) Stats(ctx context.Context) (*v1alpha1.AllocationStats, error) {
	active, err := h.ListAllocations(ctx, AllocationFilter{Phase: v1alpha1.AllocationActive})
	if err != nil {
		return nil, err
	}
	rooms, err := h.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	students, err := h.ListStudents(ctx)
	if err != nil {
		return nil, err
	}

	stats := &v1alpha1.AllocationStats{
		ActiveAllocations: len(active),
		TotalRooms:        len(rooms),
		TotalStudents:     len(students),
	}
	if len(active) > 0 {
		mean := lo.SumBy(active, func(a v1alpha1.Allocation) float64 { return a.Spec.Score }) / float64(len(active))
		stats.AverageScore = Round2(mean)
	}
	stats.OccupiedRooms = lo.CountBy(rooms, func(r v1alpha1.Room) bool { return r.Status.Occupied > 0 })
	stats.AvailableRooms = lo.CountBy(rooms, func(r v1alpha1.Room) bool {
		return r.IsAvailable() && r.Status.Occupied < r.Spec.Capacity
	})
	stats.PendingStudents = lo.CountBy(students, func(s v1alpha1.Student) bool {
		return s.HasPreferences() && !s.IsAllocated()
	})
	return stats, nil
}

// Readiness reports what the next allocation run would see.
func (h *Hostel) Readiness(ctx context.Context) (*v1alpha1.Readiness, error) {
	students, err := h.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := h.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	out := &v1alpha1.Readiness{
		TotalStudents: len(students),
		TotalRooms:    len(rooms),
		Students:      make([]v1alpha1.StudentReadiness, 0, len(students)),
		Rooms:         make([]v1alpha1.RoomReadiness, 0, len(rooms)),
	}
	for i := range students {
		s := &students[i]
		sr := v1alpha1.StudentReadiness{
			Name:           s.Metadata.Name,
			FullName:       s.Spec.FullName,
			HasPreferences: s.HasPreferences(),
			HasAllocation:  s.IsAllocated(),
		}
		if sr.HasPreferences && !sr.HasAllocation {
			out.CandidateCount++
		}
		out.Students = append(out.Students, sr)
	}
	for i := range rooms {
		r := &rooms[i]
		rr := v1alpha1.RoomReadiness{
			Name:        r.Metadata.Name,
			Capacity:    r.Spec.Capacity,
			Occupied:    r.Status.Occupied,
			Phase:       r.Status.Phase,
			IsAvailable: r.IsAvailable() && r.Status.Occupied < r.Spec.Capacity,
		}
		if rr.IsAvailable {
			out.AvailableRooms++
		}
		out.Rooms = append(out.Rooms, rr)
	}
	return out, nil
}

// Round2 rounds a score to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

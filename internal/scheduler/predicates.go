package scheduler

import "github.com/klubi/hostel/pkg/apis/v1alpha1"

// Predicate is a filter function that returns true if a room can take another
// student. occupied is the room's occupancy as seen by the current run.
type Predicate func(room *v1alpha1.Room, occupied int) bool

// RoomIsAvailable checks that the room is not under maintenance.
func RoomIsAvailable(room *v1alpha1.Room, occupied int) bool {
	return room.IsAvailable()
}

// RoomHasCapacity checks that the run-scoped occupancy is below capacity.
func RoomHasCapacity(room *v1alpha1.Room, occupied int) bool {
	return occupied < room.Spec.Capacity
}

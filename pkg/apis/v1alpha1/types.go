// Package v1alpha1 defines all Hostel resource types.
package v1alpha1

import "time"

const (
	APIVersion = "hostel.dev/v1alpha1"
)

// Resource kinds
const (
	KindStudent    = "Student"
	KindRoom       = "Room"
	KindAllocation = "Allocation"
)

// TypeMeta describes the API version and kind of a resource.
type TypeMeta struct {
	APIVersion string `json:"apiVersion" yaml:"apiVersion"`
	Kind       string `json:"kind" yaml:"kind"`
}

// ObjectMeta holds metadata common to all resources.
type ObjectMeta struct {
	Name      string            `json:"name" yaml:"name"`
	Labels    map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	UID       string            `json:"uid,omitempty" yaml:"uid,omitempty"`
	CreatedAt time.Time         `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// -------------------------------------------------------
// Student
// -------------------------------------------------------

// Student is a registered resident. Metadata.Name is the student identifier
// and Metadata.CreatedAt the registration timestamp.
type Student struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta    `json:"metadata" yaml:"metadata"`
	Spec     StudentSpec   `json:"spec" yaml:"spec"`
	Status   StudentStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// StudentStatus points at the student's Active allocation, if any. It is
// maintained by the store alongside the allocation record.
type StudentStatus struct {
	Room       string `json:"room,omitempty" yaml:"room,omitempty"`
	Allocation string `json:"allocation,omitempty" yaml:"allocation,omitempty"`
}

type StudentSpec struct {
	FullName string `json:"fullName" yaml:"fullName"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Course   string `json:"course,omitempty" yaml:"course,omitempty"`
	Year     int    `json:"year,omitempty" yaml:"year,omitempty"`
	Gender   string `json:"gender,omitempty" yaml:"gender,omitempty"`
	// Preferences is nil until the student submits the questionnaire.
	Preferences *Preferences `json:"preferences,omitempty" yaml:"preferences,omitempty"`
}

// Preferences is a submitted lifestyle questionnaire. Values is keyed by
// preference attribute name (sleep_time, noise_tolerance, ...).
type Preferences struct {
	Values             map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
	Interests          string            `json:"interests,omitempty" yaml:"interests,omitempty"`
	DietaryPreferences string            `json:"dietaryPreferences,omitempty" yaml:"dietaryPreferences,omitempty"`
	Notes              string            `json:"notes,omitempty" yaml:"notes,omitempty"`
	SubmittedAt        time.Time         `json:"submittedAt,omitempty" yaml:"submittedAt,omitempty"`
}

// HasPreferences reports whether the student has submitted preferences.
func (s *Student) HasPreferences() bool {
	return s.Spec.Preferences != nil
}

// IsAllocated reports whether the student currently holds a room.
func (s *Student) IsAllocated() bool {
	return s.Status.Allocation != ""
}

// -------------------------------------------------------
// Room
// -------------------------------------------------------

// RoomPhase represents whether a room takes new residents.
type RoomPhase string

const (
	RoomAvailable   RoomPhase = "Available"
	RoomMaintenance RoomPhase = "Maintenance"
)

// Room is a shared room. Metadata.Name is the room number.
type Room struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta `json:"metadata" yaml:"metadata"`
	Spec     RoomSpec   `json:"spec" yaml:"spec"`
	Status   RoomStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

type RoomSpec struct {
	Capacity  int      `json:"capacity" yaml:"capacity"`
	Floor     int      `json:"floor,omitempty" yaml:"floor,omitempty"`
	Building  string   `json:"building,omitempty" yaml:"building,omitempty"`
	Amenities []string `json:"amenities,omitempty" yaml:"amenities,omitempty"`
}

type RoomStatus struct {
	Phase    RoomPhase `json:"phase" yaml:"phase"`
	Occupied int       `json:"occupied" yaml:"occupied"`
	// Occupants lists student names in allocation order.
	Occupants []string `json:"occupants,omitempty" yaml:"occupants,omitempty"`
}

// IsAvailable reports whether the room accepts new residents. An unset
// phase counts as available.
func (r *Room) IsAvailable() bool {
	return r.Status.Phase == "" || r.Status.Phase == RoomAvailable
}

// SpareCapacity returns how many more students the room can take.
func (r *Room) SpareCapacity() int {
	spare := r.Spec.Capacity - r.Status.Occupied
	if spare < 0 {
		return 0
	}
	return spare
}

// -------------------------------------------------------
// Allocation
// -------------------------------------------------------

// AllocationPhase distinguishes the current assignment from history.
type AllocationPhase string

const (
	AllocationActive   AllocationPhase = "Active"
	AllocationInactive AllocationPhase = "Inactive"
)

// Allocation records a student's assignment to a room. Allocations are never
// deleted; releasing one flips it to Inactive.
type Allocation struct {
	TypeMeta `json:",inline" yaml:",inline"`
	Metadata ObjectMeta       `json:"metadata" yaml:"metadata"`
	Spec     AllocationSpec   `json:"spec" yaml:"spec"`
	Status   AllocationStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

type AllocationSpec struct {
	Student string  `json:"student" yaml:"student"`
	Room    string  `json:"room" yaml:"room"`
	Score   float64 `json:"score" yaml:"score"`
}

type AllocationStatus struct {
	Phase       AllocationPhase `json:"phase" yaml:"phase"`
	AllocatedAt time.Time       `json:"allocatedAt,omitempty" yaml:"allocatedAt,omitempty"`
	ReleasedAt  time.Time       `json:"releasedAt,omitempty" yaml:"releasedAt,omitempty"`
}

// IsActive reports whether this is the student's current assignment.
func (a *Allocation) IsActive() bool {
	return a.Status.Phase == AllocationActive
}

// -------------------------------------------------------
// Allocation run results
// -------------------------------------------------------

// AllocationResult summarises one allocation run.
type AllocationResult struct {
	AllocatedCount int                `json:"allocatedCount" yaml:"allocatedCount"`
	TotalStudents  int                `json:"totalStudents" yaml:"totalStudents"`
	Details        []AllocationDetail `json:"details" yaml:"details"`
	Skipped        []SkippedStudent   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Message        string             `json:"message" yaml:"message"`
}

// AllocationDetail describes one committed assignment. Score is rounded to
// two decimals.
type AllocationDetail struct {
	StudentID   string  `json:"studentId" yaml:"studentId"`
	StudentName string  `json:"studentName" yaml:"studentName"`
	Room        string  `json:"room" yaml:"room"`
	Score       float64 `json:"score" yaml:"score"`
}

// SkippedStudent is a candidate whose best room scored below the threshold.
type SkippedStudent struct {
	StudentID string  `json:"studentId" yaml:"studentId"`
	BestRoom  string  `json:"bestRoom,omitempty" yaml:"bestRoom,omitempty"`
	BestScore float64 `json:"bestScore" yaml:"bestScore"`
}

// AllocationStats is a point-in-time summary of the hostel.
type AllocationStats struct {
	ActiveAllocations int     `json:"activeAllocations" yaml:"activeAllocations"`
	AverageScore      float64 `json:"averageScore" yaml:"averageScore"`
	TotalRooms        int     `json:"totalRooms" yaml:"totalRooms"`
	OccupiedRooms     int     `json:"occupiedRooms" yaml:"occupiedRooms"`
	AvailableRooms    int     `json:"availableRooms" yaml:"availableRooms"`
	TotalStudents     int     `json:"totalStudents" yaml:"totalStudents"`
	PendingStudents   int     `json:"pendingStudents" yaml:"pendingStudents"`
}

// Readiness reports what the next allocation run would see.
type Readiness struct {
	TotalStudents  int                `json:"totalStudents" yaml:"totalStudents"`
	CandidateCount int                `json:"candidateCount" yaml:"candidateCount"`
	TotalRooms     int                `json:"totalRooms" yaml:"totalRooms"`
	AvailableRooms int                `json:"availableRooms" yaml:"availableRooms"`
	Students       []StudentReadiness `json:"students" yaml:"students"`
	Rooms          []RoomReadiness    `json:"rooms" yaml:"rooms"`
}

type StudentReadiness struct {
	Name           string `json:"name" yaml:"name"`
	FullName       string `json:"fullName" yaml:"fullName"`
	HasPreferences bool   `json:"hasPreferences" yaml:"hasPreferences"`
	HasAllocation  bool   `json:"hasAllocation" yaml:"hasAllocation"`
}

type RoomReadiness struct {
	Name        string    `json:"name" yaml:"name"`
	Capacity    int       `json:"capacity" yaml:"capacity"`
	Occupied    int       `json:"occupied" yaml:"occupied"`
	Phase       RoomPhase `json:"phase" yaml:"phase"`
	IsAvailable bool      `json:"isAvailable" yaml:"isAvailable"`
}

// CompatibilityReport is a pairwise score with its per-attribute breakdown.
type CompatibilityReport struct {
	StudentA   string               `json:"studentA" yaml:"studentA"`
	StudentB   string               `json:"studentB" yaml:"studentB"`
	Score      float64              `json:"score" yaml:"score"`
	Attributes []AttributeBreakdown `json:"attributes" yaml:"attributes"`
}

// AttributeBreakdown is one attribute's contribution to a pairwise score.
type AttributeBreakdown struct {
	Attribute  string  `json:"attribute" yaml:"attribute"`
	Weight     float64 `json:"weight" yaml:"weight"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
	Skipped    bool    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// -------------------------------------------------------
// Watch types
// -------------------------------------------------------

// EventType represents the type of a watch event.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// WatchEvent is emitted when a resource changes in the store.
type WatchEvent struct {
	Type   EventType
	Kind   string
	Key    string
	Object interface{}
}

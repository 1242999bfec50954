package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/compat"
	"github.com/klubi/hostel/internal/metrics"
	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// DefaultMinScore is the lowest room score that still yields an allocation.
const DefaultMinScore = 60.0

// Backend is the storage the scheduler reads its snapshot from and commits
// allocations to. store.Hostel implements it.
type Backend interface {
	// UnallocatedStudents returns students with preferences and no Active
	// allocation.
	UnallocatedStudents(ctx context.Context) ([]v1alpha1.Student, error)
	// RoomsWithCapacity returns rooms below capacity, least occupied first.
	RoomsWithCapacity(ctx context.Context) ([]v1alpha1.Room, error)
	// Occupants returns the students actively allocated to room.
	Occupants(ctx context.Context, room string) ([]v1alpha1.Student, error)
	// CommitAllocation persists an Active allocation and bumps occupancy.
	CommitAllocation(ctx context.Context, student, room string, score float64, at time.Time) (*v1alpha1.Allocation, error)
}

// Options tunes an allocation run.
type Options struct {
	MinScore       float64
	EmptyRoomScore float64
}

// DefaultOptions returns the standard threshold and empty-room score.
func DefaultOptions() Options {
	return Options{
		MinScore:       DefaultMinScore,
		EmptyRoomScore: DefaultEmptyRoomScore,
	}
}

// Scheduler assigns unallocated students to rooms greedily, in registration
// order, using predicate filtering and compatibility scoring.
type Scheduler struct {
	backend    Backend
	predicates []Predicate
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	// mu serialises runs; two runs never interleave their commits.
	mu sync.Mutex
}

// NewScheduler creates a Scheduler with the default predicates.
func NewScheduler(b Backend, opts Options, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		backend: b,
		predicates: []Predicate{
			RoomIsAvailable,
			RoomHasCapacity,
		},
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics attaches Prometheus collectors.
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// WithClock replaces the time source used for allocation timestamps.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Options returns the run options.
func (s *Scheduler) Options() Options {
	return s.opts
}

// roomState is the run-scoped view of one room.
type roomState struct {
	room      *v1alpha1.Room
	occupied  int
	occupants []compat.Profile
	// closed is set when a commit finds the room gone or out of service.
	closed bool
}

// Run performs one allocation run.
//
//  1. Snapshot unallocated students and rooms with spare capacity.
//  2. Sort students by registration time.
//  3. For each student, score every room that passes all predicates and
//     keep the first room reaching the highest score.
//  4. Commit if that score meets MinScore, then update the run-scoped
//     occupancy so later students see the new roommate.
//
// Empty inputs are not errors: the result carries a message and zero
// allocations. A commit refused because a student or room changed since the
// snapshot skips that student. Other storage errors abort the run; commits
// already made stay.
// If ctx is cancelled between students, the partial result is returned
// together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context) (*v1alpha1.AllocationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.run(ctx)

	outcome := metrics.OutcomeAllocated
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case result.AllocatedCount == 0:
		outcome = metrics.OutcomeNoop
	}
	s.metrics.RunFinished(outcome, result.AllocatedCount, len(result.Skipped), time.Since(start))

	s.logger.Info("scheduler: run finished",
		zap.Int("allocated", result.AllocatedCount),
		zap.Int("candidates", result.TotalStudents),
		zap.Int("skipped", len(result.Skipped)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return result, err
}

func (s *Scheduler) run(ctx context.Context) (*v1alpha1.AllocationResult, error) {
	result := &v1alpha1.AllocationResult{Details: []v1alpha1.AllocationDetail{}}

	// 1. Snapshot.
	students, err := s.backend.UnallocatedStudents(ctx)
	if err != nil {
		return result, fmt.Errorf("listing unallocated students: %w", err)
	}
	if len(students) == 0 {
		result.Message = "No students to allocate"
		return result, nil
	}

	rooms, err := s.backend.RoomsWithCapacity(ctx)
	if err != nil {
		return result, fmt.Errorf("listing rooms with capacity: %w", err)
	}
	if len(rooms) == 0 {
		result.Message = "No available rooms"
		return result, nil
	}

	states := make([]*roomState, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		occupants, err := s.backend.Occupants(ctx, room.Metadata.Name)
		if err != nil {
			return result, fmt.Errorf("loading occupants of %s: %w", room.Metadata.Name, err)
		}
		st := &roomState{room: room, occupied: room.Status.Occupied}
		for j := range occupants {
			st.occupants = append(st.occupants, compat.ProfileOf(occupants[j].Spec.Preferences))
		}
		states = append(states, st)
	}

	s.logger.Debug("scheduler: snapshot taken",
		zap.Int("students", len(students)),
		zap.Int("rooms", len(states)),
	)

	// 2. Registration order. Stable so equal timestamps keep store order.
	sort.SliceStable(students, func(i, j int) bool {
		return students[i].Metadata.CreatedAt.Before(students[j].Metadata.CreatedAt)
	})
	result.TotalStudents = len(students)

	for i := range students {
		if err := ctx.Err(); err != nil {
			result.Message = summary(result)
			return result, err
		}

		student := &students[i]
		profile := compat.ProfileOf(student.Spec.Preferences)

		// 3. Filter and score.
		best, bestScore := s.pickRoom(student, profile, states)

		if best == nil || bestScore < s.opts.MinScore {
			skip := v1alpha1.SkippedStudent{StudentID: student.Metadata.Name}
			if best != nil {
				skip.BestRoom = best.room.Metadata.Name
				skip.BestScore = store.Round2(bestScore)
			}
			result.Skipped = append(result.Skipped, skip)
			s.logger.Debug("scheduler: student skipped",
				zap.String("student", student.Metadata.Name),
				zap.Float64("bestScore", bestScore),
			)
			continue
		}

		// 4. Commit. A refusal caused by a change made outside this run skips
		// the student; a room at fault is also dropped from the run view.
		_, err := s.backend.CommitAllocation(ctx, student.Metadata.Name, best.room.Metadata.Name, bestScore, s.now())
		switch {
		case err == nil:
		case errors.Is(err, store.ErrRoomFull):
			best.occupied = best.room.Spec.Capacity
			s.skipRefused(result, student, best, err)
			continue
		case errors.Is(err, store.ErrRoomUnavailable), errors.Is(err, store.ErrRoomNotFound):
			best.closed = true
			s.skipRefused(result, student, best, err)
			continue
		case errors.Is(err, store.ErrAlreadyAllocated),
			errors.Is(err, store.ErrNoPreferences),
			errors.Is(err, store.ErrNotFound):
			s.skipRefused(result, student, best, err)
			continue
		default:
			result.Message = summary(result)
			return result, fmt.Errorf("committing %s: %w", student.Metadata.Name, err)
		}

		best.occupied++
		best.occupants = append(best.occupants, profile)
		s.metrics.ObserveScore(bestScore)

		result.AllocatedCount++
		result.Details = append(result.Details, v1alpha1.AllocationDetail{
			StudentID:   student.Metadata.Name,
			StudentName: student.Spec.FullName,
			Room:        best.room.Metadata.Name,
			Score:       store.Round2(bestScore),
		})
		s.logger.Info("scheduler: student allocated",
			zap.String("student", student.Metadata.Name),
			zap.String("room", best.room.Metadata.Name),
			zap.Float64("score", bestScore),
		)
	}

	result.Message = summary(result)
	return result, nil
}

// pickRoom returns the first room reaching the highest score among those
// passing every predicate, or nil when none does.
func (s *Scheduler) pickRoom(student *v1alpha1.Student, profile compat.Profile, states []*roomState) (*roomState, float64) {
	var best *roomState
	bestScore := -1.0

	for _, st := range states {
		if !s.feasible(st) {
			continue
		}
		score := RoomScore(profile, st.occupants, s.opts.EmptyRoomScore)
		s.logger.Debug("scheduler: room scored",
			zap.String("student", student.Metadata.Name),
			zap.String("room", st.room.Metadata.Name),
			zap.Int("occupied", st.occupied),
			zap.Float64("score", score),
		)
		if score > bestScore {
			best, bestScore = st, score
		}
	}
	return best, bestScore
}

func (s *Scheduler) feasible(st *roomState) bool {
	if st.closed {
		return false
	}
	for _, pred := range s.predicates {
		if !pred(st.room, st.occupied) {
			return false
		}
	}
	return true
}

// skipRefused records a student whose commit the store refused because of a
// change made outside this run.
func (s *Scheduler) skipRefused(result *v1alpha1.AllocationResult, student *v1alpha1.Student, room *roomState, err error) {
	result.Skipped = append(result.Skipped, v1alpha1.SkippedStudent{StudentID: student.Metadata.Name})
	s.logger.Warn("scheduler: commit refused, skipping student",
		zap.String("student", student.Metadata.Name),
		zap.String("room", room.room.Metadata.Name),
		zap.Error(err),
	)
}

func summary(r *v1alpha1.AllocationResult) string {
	return fmt.Sprintf("Successfully allocated %d out of %d students", r.AllocatedCount, r.TotalStudents)
}

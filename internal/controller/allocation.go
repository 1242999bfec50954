package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// AllocationRunner is the part of the scheduler the controller drives.
type AllocationRunner interface {
	Run(ctx context.Context) (*v1alpha1.AllocationResult, error)
}

// AllocationController triggers an allocation run when a student becomes a
// candidate or a room gains spare capacity. The manager runs one worker per
// controller, so triggered runs never overlap.
type AllocationController struct {
	hostel *store.Hostel
	runner AllocationRunner
	logger *zap.Logger
}

// NewAllocationController creates a new AllocationController.
func NewAllocationController(h *store.Hostel, runner AllocationRunner, logger *zap.Logger) *AllocationController {
	return &AllocationController{
		hostel: h,
		runner: runner,
		logger: logger,
	}
}

// Reconcile handles a Student or Room key:
//
//  1. Student keys trigger a run when the student has preferences and no
//     Active allocation.
//  2. Room keys trigger a run when the room is available with spare capacity.
//  3. Deleted resources and anything else are ignored.
//
// Commits made by the run emit further events; those settle once a run
// commits nothing.
func (c *AllocationController) Reconcile(ctx context.Context, key string) error {
	kind, name := store.SplitKey(key)

	trigger, err := c.shouldRun(ctx, kind, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("resource not found, possibly deleted", zap.String("key", key))
			return nil
		}
		return err
	}
	if !trigger {
		return nil
	}

	c.logger.Debug("triggering allocation run", zap.String("key", key))
	result, err := c.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("allocation run for %s: %w", key, err)
	}
	if result.AllocatedCount > 0 {
		c.logger.Info("automatic allocation",
			zap.String("trigger", key),
			zap.Int("allocated", result.AllocatedCount),
			zap.Int("candidates", result.TotalStudents),
		)
	}
	return nil
}

func (c *AllocationController) shouldRun(ctx context.Context, kind, name string) (bool, error) {
	switch kind {
	case v1alpha1.KindStudent:
		st, err := c.hostel.GetStudent(ctx, name)
		if err != nil {
			return false, err
		}
		return st.HasPreferences() && !st.IsAllocated(), nil
	case v1alpha1.KindRoom:
		r, err := c.hostel.GetRoom(ctx, name)
		if err != nil {
			return false, err
		}
		return r.IsAvailable() && r.SpareCapacity() > 0, nil
	default:
		return false, nil
	}
}

package controller

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// OccupancyController keeps Room.Status in line with the Active allocations
// that reference the room. CommitAllocation and Release already maintain it
// transactionally; this repairs drift from manual edits or older data.
type OccupancyController struct {
	hostel *store.Hostel
	logger *zap.Logger
}

// NewOccupancyController creates a new OccupancyController.
func NewOccupancyController(h *store.Hostel, logger *zap.Logger) *OccupancyController {
	return &OccupancyController{
		hostel: h,
		logger: logger,
	}
}

// Reconcile accepts Room keys and Allocation keys. An Allocation key is
// resolved to the room it references.
func (c *OccupancyController) Reconcile(ctx context.Context, key string) error {
	kind, name := store.SplitKey(key)

	switch kind {
	case v1alpha1.KindRoom:
	case v1alpha1.KindAllocation:
		alloc, err := c.hostel.GetAllocation(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("resolving allocation %q: %w", key, err)
		}
		name = alloc.Spec.Room
	default:
		return nil
	}

	changed, err := c.hostel.ReconcileRoom(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("room not found, possibly deleted", zap.String("room", name))
			return nil
		}
		return err
	}
	if changed {
		c.logger.Warn("room occupancy repaired", zap.String("room", name))
	}
	return nil
}

// RoomKeys lists every room key; it feeds the periodic resync.
func (c *OccupancyController) RoomKeys(ctx context.Context) ([]string, error) {
	rooms, err := c.hostel.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rooms))
	for i := range rooms {
		keys = append(keys, store.ResourceKey(v1alpha1.KindRoom, rooms[i].Metadata.Name))
	}
	return keys, nil
}

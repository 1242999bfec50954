// Package controller implements reconciliation loops over hostel resources.
package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/metrics"
	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// Reconciler brings the resource behind key in line with the store. A
// returned error schedules the key again with backoff.
type Reconciler interface {
	Reconcile(ctx context.Context, key string) error
}

// Resync periodically enqueues the keys returned by Keys, so a controller
// also converges on state that changed without a watch event.
type Resync struct {
	Interval time.Duration
	Keys     func(ctx context.Context) ([]string, error)
}

// Manager runs registered controllers. Each controller gets its own queue
// and a single worker, fed by store watches and an optional resync ticker.
type Manager struct {
	store       store.Store
	metrics     *metrics.Metrics
	logger      *zap.Logger
	controllers []*registration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type registration struct {
	name       string
	reconciler Reconciler
	kinds      []string
	resync     *Resync
	queue      *WorkQueue
}

func NewManager(s store.Store, logger *zap.Logger) *Manager {
	return &Manager{store: s, logger: logger}
}

// WithMetrics records every reconcile outcome per controller.
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.metrics = mt
	return m
}

// Register adds a controller reconciling every key of the given kinds.
func (m *Manager) Register(name string, r Reconciler, kinds []string) {
	m.controllers = append(m.controllers, &registration{
		name:       name,
		reconciler: r,
		kinds:      kinds,
		queue:      NewWorkQueue(),
	})
}

// RegisterWithResync is Register plus a periodic resync. A zero interval or
// nil Keys disables the resync.
func (m *Manager) RegisterWithResync(name string, r Reconciler, kinds []string, resync Resync) {
	m.Register(name, r, kinds)
	if resync.Interval > 0 && resync.Keys != nil {
		m.controllers[len(m.controllers)-1].resync = &resync
	}
}

// Start launches every controller and returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, reg := range m.controllers {
		log := m.logger.With(zap.String("controller", reg.name))
		log.Info("starting controller", zap.Strings("watchKinds", reg.kinds))

		for _, kind := range reg.kinds {
			events, stop := m.store.Watch(store.KindPrefix(kind))
			m.spawn(func() { feedEvents(ctx, events, stop, reg.queue, log) })
		}
		if reg.resync != nil {
			m.spawn(func() { feedResync(ctx, *reg.resync, reg.queue, log) })
		}
		m.spawn(func() { m.work(ctx, reg, log) })
	}
	return nil
}

func (m *Manager) spawn(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

func feedEvents(ctx context.Context, events <-chan v1alpha1.WatchEvent, stop func(), q *WorkQueue, log *zap.Logger) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			log.Debug("watch event", zap.String("type", string(evt.Type)), zap.String("key", evt.Key))
			q.Add(evt.Key)
		}
	}
}

func feedResync(ctx context.Context, resync Resync, q *WorkQueue, log *zap.Logger) {
	ticker := time.NewTicker(resync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys, err := resync.Keys(ctx)
			if err != nil {
				log.Warn("resync listing failed", zap.Error(err))
				continue
			}
			for _, key := range keys {
				q.Add(key)
			}
		}
	}
}

func (m *Manager) work(ctx context.Context, reg *registration, log *zap.Logger) {
	for {
		key, ok := reg.queue.Get()
		if !ok || ctx.Err() != nil {
			return
		}

		log.Debug("reconciling", zap.String("key", key))
		err := reg.reconciler.Reconcile(ctx, key)
		m.metrics.Reconciled(reg.name, err)
		if err != nil {
			log.Error("reconcile failed", zap.String("key", key), zap.Error(err))
			reg.queue.AddAfterFailure(key)
		} else {
			reg.queue.Forget(key)
		}
		reg.queue.Done(key)
	}
}

// Stop cancels all controllers and waits for their goroutines to exit. An
// in-flight reconcile finishes first.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	for _, reg := range m.controllers {
		m.logger.Info("stopping controller", zap.String("controller", reg.name))
		reg.queue.Close()
	}
	m.wg.Wait()
}

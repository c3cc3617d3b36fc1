package occupancy

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"parkaro/internal/domain"
	"parkaro/internal/metrics"
)

// Sensor reports the physically occupied slots.
type Sensor interface {
	OccupiedSlots(ctx context.Context) ([]int, error)
}

// Ledger reports the slots held by active parking sessions.
type Ledger interface {
	ActiveSlots(ctx context.Context) ([]int, error)
}

// Reconciler owns the published snapshot. Refresh, Reserve and Release are
// the only writers; Snapshot readers always see a complete, immutable value.
type Reconciler struct {
	total    int
	interval time.Duration
	sensor   Sensor
	ledger   Ledger
	clock    clockwork.Clock
	logger   *zerolog.Logger

	mu         sync.Mutex
	reserved   map[int]struct{}
	sensorSeen []int
	degraded   bool
	onChange   []func(domain.OccupancySnapshot)

	current atomic.Pointer[domain.OccupancySnapshot]
}

func NewReconciler(total int, interval time.Duration, sensor Sensor, ledger Ledger, clock clockwork.Clock, logger *zerolog.Logger) *Reconciler {
	r := &Reconciler{
		total:    total,
		interval: interval,
		sensor:   sensor,
		ledger:   ledger,
		clock:    clock,
		logger:   logger,
		reserved: make(map[int]struct{}),
	}
	snap := Reconcile(nil, nil, total, clock.Now().UTC())
	r.current.Store(&snap)
	return r
}

// OnChange registers fn to be called, outside the lock, whenever a new
// snapshot differs from the previous one in its free set.
func (r *Reconciler) OnChange(fn func(domain.OccupancySnapshot)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Snapshot returns the latest published snapshot. Callers must not modify it.
func (r *Reconciler) Snapshot() *domain.OccupancySnapshot {
	return r.current.Load()
}

func (r *Reconciler) Total() int {
	return r.total
}

func (r *Reconciler) Interval() time.Duration {
	return r.interval
}

// Refresh runs one reconciliation cycle. A failing sensor degrades the cycle
// to the ledger-only view; a failing ledger keeps the last known
// reservations and the error is returned.
func (r *Reconciler) Refresh(ctx context.Context) error {
	start := r.clock.Now()
	defer func() { metrics.ObserveReconcile(r.clock.Since(start).Seconds()) }()

	sensorCtx, cancel := context.WithTimeout(ctx, r.interval)
	seen, sensorErr := r.sensor.OccupiedSlots(sensorCtx)
	cancel()

	r.mu.Lock()
	r.setDegraded(sensorErr)
	if sensorErr != nil {
		seen = nil
	}
	r.sensorSeen = seen

	// The ledger is read under the lock so a Reserve or Release cannot be
	// overwritten by an older read.
	active, ledgerErr := r.ledger.ActiveSlots(ctx)
	if ledgerErr == nil {
		r.reserved = make(map[int]struct{}, len(active))
		for _, slot := range active {
			r.reserved[slot] = struct{}{}
		}
	} else {
		r.logger.Error().Err(ledgerErr).Msg("reading reservation ledger failed; keeping last known reservations")
	}
	snap, changed, listeners := r.publishLocked()
	r.mu.Unlock()

	r.fire(snap, changed, listeners)
	return ledgerErr
}

// Reserve marks slot as held by a reservation and republishes at once.
func (r *Reconciler) Reserve(slot int) {
	r.mu.Lock()
	r.reserved[slot] = struct{}{}
	snap, changed, listeners := r.publishLocked()
	r.mu.Unlock()
	r.fire(snap, changed, listeners)
}

// Release drops a reservation. Call it only after the check-out is durable.
func (r *Reconciler) Release(slot int) {
	r.mu.Lock()
	delete(r.reserved, slot)
	snap, changed, listeners := r.publishLocked()
	r.mu.Unlock()
	r.fire(snap, changed, listeners)
}

func (r *Reconciler) setDegraded(sensorErr error) {
	switch {
	case sensorErr != nil && !r.degraded:
		r.degraded = true
		metrics.SetSensorDegraded(true)
		r.logger.Warn().Err(sensorErr).Msg("occupancy sensor unavailable; using reservations only")
	case sensorErr == nil && r.degraded:
		r.degraded = false
		metrics.SetSensorDegraded(false)
		r.logger.Info().Msg("occupancy sensor recovered")
	}
}

func (r *Reconciler) publishLocked() (domain.OccupancySnapshot, bool, []func(domain.OccupancySnapshot)) {
	reserved := make([]int, 0, len(r.reserved))
	for slot := range r.reserved {
		reserved = append(reserved, slot)
	}
	slices.Sort(reserved)

	snap := Reconcile(r.sensorSeen, reserved, r.total, r.clock.Now().UTC())
	snap.SensorDegraded = r.degraded

	prev := r.current.Load()
	r.current.Store(&snap)
	metrics.SetSlots(len(snap.Free), len(snap.Occupied))

	changed := prev == nil || prev.SensorDegraded != snap.SensorDegraded || !slices.Equal(prev.Free, snap.Free)
	return snap, changed, r.onChange
}

func (r *Reconciler) fire(snap domain.OccupancySnapshot, changed bool, listeners []func(domain.OccupancySnapshot)) {
	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(snap)
	}
}

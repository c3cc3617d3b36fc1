package occupancy

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkaro/internal/domain"
)

func TestReconcilePartitionsEverySlot(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		total := 1 + rng.IntN(20)
		sensor := randomSlots(rng, total+3)
		reserved := randomSlots(rng, total+3)

		snap := Reconcile(sensor, reserved, total, time.Time{})

		seen := map[int]int{}
		for _, s := range snap.Free {
			seen[s]++
		}
		for _, s := range snap.Occupied {
			seen[s]++
		}
		require.Len(t, seen, total)
		for slot := 1; slot <= total; slot++ {
			require.Equal(t, 1, seen[slot], "slot %d must be classified exactly once", slot)
		}
		for _, s := range append(sensor, reserved...) {
			if s >= 1 && s <= total {
				assert.False(t, snap.IsFree(s))
			}
		}
	}
}

func randomSlots(rng *rand.Rand, upper int) []int {
	n := rng.IntN(upper)
	out := make([]int, n)
	for i := range out {
		out[i] = rng.IntN(upper+2) - 1
	}
	return out
}

func TestReconcileUnion(t *testing.T) {
	snap := Reconcile([]int{2}, nil, 3, time.Time{})
	assert.Equal(t, []int{1, 3}, snap.Free)
	assert.Equal(t, []int{2}, snap.Occupied)

	snap = Reconcile([]int{2}, []int{1}, 3, time.Time{})
	assert.Equal(t, []int{3}, snap.Free)
	assert.Equal(t, []int{1, 2}, snap.Occupied)
}

type fakeSensor struct {
	mu    sync.Mutex
	slots []int
	err   error
}

func (f *fakeSensor) set(slots []int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots, f.err = slots, err
}

func (f *fakeSensor) OccupiedSlots(context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots, f.err
}

type fakeLedger struct {
	slots []int
	err   error
}

func (f *fakeLedger) ActiveSlots(context.Context) ([]int, error) {
	return f.slots, f.err
}

func newTestReconciler(sensor Sensor, ledger Ledger) *Reconciler {
	logger := zerolog.New(io.Discard)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewReconciler(3, 3*time.Second, sensor, ledger, clock, &logger)
}

func TestRefreshUsesBothSources(t *testing.T) {
	r := newTestReconciler(&fakeSensor{slots: []int{2}}, &fakeLedger{slots: []int{3}})
	require.NoError(t, r.Refresh(context.Background()))

	snap := r.Snapshot()
	assert.Equal(t, []int{1}, snap.Free)
	assert.Equal(t, []int{2, 3}, snap.Occupied)
	assert.False(t, snap.SensorDegraded)
}

func TestRefreshDegradesOnSensorFailure(t *testing.T) {
	sensor := &fakeSensor{slots: []int{1, 2}}
	r := newTestReconciler(sensor, &fakeLedger{slots: []int{3}})
	require.NoError(t, r.Refresh(context.Background()))
	assert.Empty(t, r.Snapshot().Free)

	sensor.set(nil, errors.New("camera offline"))
	require.NoError(t, r.Refresh(context.Background()))

	snap := r.Snapshot()
	assert.True(t, snap.SensorDegraded)
	assert.Equal(t, []int{1, 2}, snap.Free)
	assert.Equal(t, []int{3}, snap.Occupied)

	sensor.set([]int{1}, nil)
	require.NoError(t, r.Refresh(context.Background()))
	assert.False(t, r.Snapshot().SensorDegraded)
	assert.Equal(t, []int{2}, r.Snapshot().Free)
}

func TestRefreshKeepsReservationsWhenLedgerFails(t *testing.T) {
	ledger := &fakeLedger{slots: []int{1}}
	r := newTestReconciler(&fakeSensor{}, ledger)
	require.NoError(t, r.Refresh(context.Background()))

	ledger.err = errors.New("db down")
	assert.Error(t, r.Refresh(context.Background()))
	assert.Equal(t, []int{1}, r.Snapshot().Occupied)
}

func TestReserveAndReleaseRepublish(t *testing.T) {
	r := newTestReconciler(&fakeSensor{}, &fakeLedger{})
	before := r.Snapshot()

	var got []domain.OccupancySnapshot
	r.OnChange(func(s domain.OccupancySnapshot) { got = append(got, s) })

	r.Reserve(2)
	assert.Equal(t, []int{1, 3}, r.Snapshot().Free)
	assert.Equal(t, []int{1, 2, 3}, before.Free, "published snapshots are never mutated")

	r.Reserve(2)
	r.Release(2)
	assert.Equal(t, []int{1, 2, 3}, r.Snapshot().Free)
	assert.Len(t, got, 2)
}

func TestSnapshotConcurrentReaders(t *testing.T) {
	r := newTestReconciler(&fakeSensor{slots: []int{1}}, &fakeLedger{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					r.Reserve(2)
					r.Release(2)
				} else {
					s := r.Snapshot()
					assert.Equal(t, 3, len(s.Free)+len(s.Occupied))
				}
			}
		}(i)
	}
	wg.Wait()
}

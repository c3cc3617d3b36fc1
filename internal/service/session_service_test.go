package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"parkaro/internal/apperr"
	"parkaro/internal/charging"
	"parkaro/internal/domain"
	"parkaro/internal/occupancy"
	"parkaro/internal/pricing"
	"parkaro/internal/repository"
	"parkaro/internal/repository/memory"
	"parkaro/internal/sensor"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n domain.Notification) {
	m.Called(ctx, n)
}

type fixture struct {
	svc        *SessionService
	charging   *charging.Service
	reconciler *occupancy.Reconciler
	store      repository.Store
	clock      *clockwork.FakeClock
	notifier   *mockNotifier
}

func newFixture(t *testing.T, store repository.Store, total int, occupied ...int) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := zerolog.New(io.Discard)
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Maybe()

	reconciler := occupancy.NewReconciler(total, time.Second, sensor.NewStatic(occupied...),
		store.Repositories().ParkingSessions, clock, &logger)
	require.NoError(t, reconciler.Refresh(context.Background()))

	chargingSvc := charging.NewService(store, clock, notifier, &logger, charging.Options{
		BatteryKWh: 40, RateKW: 7.4, StartLevelMin: 10, StartLevelMax: 45,
	})
	svc := NewSessionService(store, reconciler, chargingSvc, pricing.Default(), clock, notifier, &logger,
		SessionOptions{StaleAfter: 12 * time.Hour})
	return &fixture{svc: svc, charging: chargingSvc, reconciler: reconciler, store: store, clock: clock, notifier: notifier}
}

func (f *fixture) addUser(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := f.store.Repositories().Users.Create(context.Background(), &domain.User{
		Username: name, Email: name + "@example.com", QRCode: "QR-" + name, Role: domain.RoleDriver, VehicleType: "ev",
	})
	require.NoError(t, err)
	return u
}

func level(v int) *int { return &v }

func TestCheckInAssignsLowestFreeSlot(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 3, 2)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addUser(t, "bob")
	f.addUser(t, "carol")

	a, err := f.svc.CheckIn(ctx, "QR-alice", level(20))
	require.NoError(t, err)
	assert.Equal(t, 1, a.AssignedSlot)
	assert.Equal(t, 20, a.StartChargeLevel)
	assert.Equal(t, 1, a.FreeSpaces)
	assert.Equal(t, 3, a.TotalSpaces)

	b, err := f.svc.CheckIn(ctx, "QR-bob", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, b.AssignedSlot)
	assert.GreaterOrEqual(t, b.StartChargeLevel, 10)
	assert.LessOrEqual(t, b.StartChargeLevel, 45)
	assert.Equal(t, 0, b.FreeSpaces)

	_, err = f.svc.CheckIn(ctx, "QR-carol", nil)
	assert.True(t, errors.Is(err, apperr.ErrNoCapacity))

	status := f.svc.Status()
	assert.Equal(t, 0, status.FreeSpaces)
	assert.Equal(t, []int{1, 2, 3}, status.OccupiedSlots)
}

func TestCheckInRejectsUnknownAndDuplicate(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 3)
	ctx := context.Background()
	f.addUser(t, "alice")

	_, err := f.svc.CheckIn(ctx, "QR-nobody", nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.CheckIn(ctx, "QR-alice", level(101))
	assert.Equal(t, apperr.KindInvalidLevel, apperr.KindOf(err))

	_, err = f.svc.CheckIn(ctx, "QR-alice", nil)
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, "QR-alice", nil)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyActive))
	assert.Equal(t, 2, f.svc.Status().FreeSpaces)
}

func TestCheckOutBillsAndReportsFullChargeDwell(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 3, 2)
	ctx := context.Background()
	alice := f.addUser(t, "alice")

	in, err := f.svc.CheckIn(ctx, "QR-alice", level(50))
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	upd, err := f.charging.UpdateLevel(ctx, in.ChargingSessionID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFirstTimeComplete, upd.Outcome)

	f.clock.Advance(30 * time.Minute)
	out, err := f.svc.CheckOut(ctx, "QR-alice")
	require.NoError(t, err)

	assert.Equal(t, alice.ID, out.UserID)
	assert.Equal(t, 1, out.Slot)
	assert.Equal(t, 40, out.DurationMinutes)
	assert.Equal(t, "40 minutes", out.DurationDisplay)
	assert.InDelta(t, 50.00, out.Amount, 1e-9)
	assert.Equal(t, "₹1.25/min (40 minutes)", out.RateDescription)
	require.NotNil(t, out.BatteryFullDwell)
	assert.Equal(t, 30*time.Minute, *out.BatteryFullDwell)
	assert.Equal(t, "30m 0s", out.BatteryFullLabel)

	repos := f.store.Repositories()
	cs, err := repos.ChargingSessions.FindByID(ctx, in.ChargingSessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargingStopped, cs.Status)
	assert.Equal(t, int64(100), cs.EndChargeLevel.Int64)
	assert.InDelta(t, 20.0, cs.TotalEnergyKWh, 1e-9)

	payment, err := repos.Payments.FindBySessionID(ctx, in.ParkingSessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.InDelta(t, 50.00, payment.Amount, 1e-9)

	assert.True(t, f.svc.Status().FreeSpaces == 2)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n domain.Notification) bool {
		return n.Type == domain.NotificationCheckedOut && n.Slot == 1
	}))
}

func TestImmediateCheckOutIsFree(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 3)
	ctx := context.Background()
	f.addUser(t, "alice")

	in, err := f.svc.CheckIn(ctx, "QR-alice", nil)
	require.NoError(t, err)

	out, err := f.svc.CheckOut(ctx, "QR-alice")
	require.NoError(t, err)
	assert.Equal(t, 1, out.DurationMinutes)
	assert.Zero(t, out.Amount)
	assert.Equal(t, "Free (0-5 minutes)", out.RateDescription)
	assert.Nil(t, out.BatteryFullDwell)
	assert.Empty(t, out.BatteryFullLabel)

	payment, err := f.store.Repositories().Payments.FindBySessionID(ctx, in.ParkingSessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentWaived, payment.Status)

	_, err = f.svc.CheckOut(ctx, "QR-alice")
	assert.True(t, errors.Is(err, apperr.ErrNoActiveSession))
}

func TestLongStayUsesLongRate(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 1)
	ctx := context.Background()
	f.addUser(t, "alice")

	_, err := f.svc.CheckIn(ctx, "QR-alice", nil)
	require.NoError(t, err)
	f.clock.Advance(2*time.Hour + 30*time.Minute + 20*time.Second)

	out, err := f.svc.CheckOut(ctx, "QR-alice")
	require.NoError(t, err)
	assert.Equal(t, 150, out.DurationMinutes)
	assert.Equal(t, "2h 30m", out.DurationDisplay)
	assert.InDelta(t, 157.50, out.Amount, 1e-9)
}

func TestScanToggles(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 2)
	ctx := context.Background()
	f.addUser(t, "alice")

	first, err := f.svc.Scan(ctx, "QR-alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCheckIn, first.Type)
	require.NotNil(t, first.CheckIn)

	f.clock.Advance(20 * time.Minute)
	second, err := f.svc.Scan(ctx, "QR-alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCheckOut, second.Type)
	require.NotNil(t, second.CheckOut)
	assert.Equal(t, first.CheckIn.AssignedSlot, second.CheckOut.Slot)

	third, err := f.svc.Scan(ctx, "QR-alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCheckIn, third.Type)
}

func TestConcurrentCheckInsNeverShareASlot(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 4)
	ctx := context.Background()
	const drivers = 12
	for i := 0; i < drivers; i++ {
		f.addUser(t, fmt.Sprintf("driver%d", i))
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		slots      = map[int]int{}
		noCapacity int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.CheckIn(ctx, fmt.Sprintf("QR-driver%d", i), nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, errors.Is(err, apperr.ErrNoCapacity))
				noCapacity++
				return
			}
			slots[res.AssignedSlot]++
		}(i)
	}
	wg.Wait()

	assert.Len(t, slots, 4)
	for slot, n := range slots {
		assert.Equal(t, 1, n, "slot %d assigned %d times", slot, n)
	}
	assert.Equal(t, drivers-4, noCapacity)

	active, err := f.store.Repositories().ParkingSessions.ActiveSlots(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, active)
}

func TestConcurrentCheckInsForOneUser(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 5)
	ctx := context.Background()
	f.addUser(t, "alice")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dupe int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CheckIn(ctx, "QR-alice", nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, apperr.ErrAlreadyActive) {
				dupe++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dupe)
	assert.Equal(t, 4, f.svc.Status().FreeSpaces)
}

// failingPaymentsStore fails every payment insert made inside a transaction.
type failingPaymentsStore struct {
	*memory.Store
}

type failingPayments struct {
	repository.PaymentRepository
}

func (failingPayments) Create(context.Context, *domain.Payment) (*domain.Payment, error) {
	return nil, errors.New("disk full")
}

func (s failingPaymentsStore) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(repos repository.Repositories) error {
		repos.Payments = failingPayments{repos.Payments}
		return fn(repos)
	})
}

func TestCheckOutRollsBackOnStorageFailure(t *testing.T) {
	store := failingPaymentsStore{memory.NewStore()}
	f := newFixture(t, store, 2)
	ctx := context.Background()
	alice := f.addUser(t, "alice")

	in, err := f.svc.CheckIn(ctx, "QR-alice", nil)
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	_, err = f.svc.CheckOut(ctx, "QR-alice")
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))

	repos := store.Repositories()
	ps, err := repos.ParkingSessions.FindActiveByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ParkingSessionID, ps.ID)

	cs, err := repos.ChargingSessions.FindByID(ctx, in.ChargingSessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargingActive, cs.Status)

	assert.False(t, f.reconciler.Snapshot().IsFree(in.AssignedSlot))
}

// failingChargingStore fails every charging session insert made inside a
// transaction.
type failingChargingStore struct {
	*memory.Store
}

type failingChargingSessions struct {
	repository.ChargingSessionRepository
}

func (failingChargingSessions) Create(context.Context, *domain.ChargingSession) (*domain.ChargingSession, error) {
	return nil, errors.New("disk full")
}

func (s failingChargingStore) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(repos repository.Repositories) error {
		repos.ChargingSessions = failingChargingSessions{repos.ChargingSessions}
		return fn(repos)
	})
}

func TestCheckInRollsBackOnStorageFailure(t *testing.T) {
	store := failingChargingStore{memory.NewStore()}
	f := newFixture(t, store, 2)
	ctx := context.Background()
	alice := f.addUser(t, "alice")

	_, err := f.svc.CheckIn(ctx, "QR-alice", level(20))
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))

	repos := store.Repositories()
	_, err = repos.ParkingSessions.FindActiveByUserID(ctx, alice.ID)
	assert.ErrorIs(t, err, repository.ErrNoActiveSession)
	slots, err := repos.ParkingSessions.ActiveSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, slots)

	snap := f.reconciler.Snapshot()
	assert.True(t, snap.IsFree(1))
	assert.Equal(t, 2, snap.FreeCount())
}

// interleavingStore runs each hook once, right after the matching read made
// outside a transaction returns.
type interleavingStore struct {
	*memory.Store
	afterActiveLookup   func()
	afterChargingLookup func()
}

func (s *interleavingStore) Repositories() repository.Repositories {
	repos := s.Store.Repositories()
	repos.ParkingSessions = interleavedParking{repos.ParkingSessions, s}
	repos.ChargingSessions = interleavedCharging{repos.ChargingSessions, s}
	return repos
}

func runOnce(hook *func()) {
	if fn := *hook; fn != nil {
		*hook = nil
		fn()
	}
}

type interleavedParking struct {
	repository.ParkingSessionRepository
	store *interleavingStore
}

func (p interleavedParking) FindActiveByUserID(ctx context.Context, userID int) (*domain.ParkingSession, error) {
	ps, err := p.ParkingSessionRepository.FindActiveByUserID(ctx, userID)
	runOnce(&p.store.afterActiveLookup)
	return ps, err
}

type interleavedCharging struct {
	repository.ChargingSessionRepository
	store *interleavingStore
}

func (c interleavedCharging) FindByParkingSessionID(ctx context.Context, id int) (*domain.ChargingSession, error) {
	cs, err := c.ChargingSessionRepository.FindByParkingSessionID(ctx, id)
	runOnce(&c.store.afterChargingLookup)
	return cs, err
}

func TestStartChargingAfterConcurrentCheckOut(t *testing.T) {
	store := &interleavingStore{Store: memory.NewStore()}
	f := newFixture(t, store, 2)
	ctx := context.Background()
	alice := f.addUser(t, "alice")

	in, err := f.svc.CheckIn(ctx, "QR-alice", level(30))
	require.NoError(t, err)
	require.NoError(t, f.charging.Stop(ctx, in.ChargingSessionID))
	f.clock.Advance(20 * time.Minute)

	var checkOutErr error
	store.afterActiveLookup = func() {
		_, checkOutErr = f.svc.CheckOut(ctx, "QR-alice")
	}
	_, err = f.charging.Start(ctx, alice.ID, nil)
	require.NoError(t, checkOutErr)
	assert.Equal(t, apperr.KindNoActiveSession, apperr.KindOf(err))

	latest, err := store.Repositories().ChargingSessions.FindLatestByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ChargingSessionID, latest.ID)
	assert.Equal(t, domain.ChargingStopped, latest.Status)
}

func TestCheckOutStopsChargingStartedMeanwhile(t *testing.T) {
	store := &interleavingStore{Store: memory.NewStore()}
	f := newFixture(t, store, 2)
	ctx := context.Background()
	alice := f.addUser(t, "alice")

	in, err := f.svc.CheckIn(ctx, "QR-alice", level(30))
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	var restarted *domain.ChargingSession
	store.afterChargingLookup = func() {
		require.NoError(t, f.charging.Stop(ctx, in.ChargingSessionID))
		var startErr error
		restarted, startErr = f.charging.Start(ctx, alice.ID, level(50))
		require.NoError(t, startErr)
	}

	out, err := f.svc.CheckOut(ctx, "QR-alice")
	require.NoError(t, err)
	assert.Equal(t, 30, out.DurationMinutes)
	require.NotNil(t, restarted)

	cs, err := store.Repositories().ChargingSessions.FindByID(ctx, restarted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargingStopped, cs.Status)
	assert.Equal(t, in.ParkingSessionID, cs.ParkingSessionID)
}

func TestReconcileKeepsReservationAfterCheckIn(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 3)
	ctx := context.Background()
	f.addUser(t, "alice")

	in, err := f.svc.CheckIn(ctx, "QR-alice", nil)
	require.NoError(t, err)
	require.NoError(t, f.reconciler.Refresh(ctx))
	assert.False(t, f.reconciler.Snapshot().IsFree(in.AssignedSlot))

	_, err = f.svc.CheckOut(ctx, "QR-alice")
	require.NoError(t, err)
	require.NoError(t, f.reconciler.Refresh(ctx))
	assert.True(t, f.reconciler.Snapshot().IsFree(in.AssignedSlot))
}

func TestAuditStaleSessions(t *testing.T) {
	f := newFixture(t, memory.NewStore(), 3)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addUser(t, "bob")

	_, err := f.svc.CheckIn(ctx, "QR-alice", nil)
	require.NoError(t, err)
	f.clock.Advance(11 * time.Hour)
	_, err = f.svc.CheckIn(ctx, "QR-bob", nil)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	n, err := f.svc.AuditStaleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sessions, err := f.svc.FindSessions(ctx, domain.ParkingSessionFilterDTO{})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.True(t, s.IsActive())
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "0 minutes", formatDuration(0))
	assert.Equal(t, "59 minutes", formatDuration(59))
	assert.Equal(t, "1h", formatDuration(60))
	assert.Equal(t, "1h 1m", formatDuration(61))
	assert.Equal(t, "1m 5s", formatDwell(65*time.Second))
	assert.Equal(t, 3, durationMinutes(time.Unix(0, 0), time.Unix(150, 0)))
	assert.Equal(t, 2, durationMinutes(time.Unix(0, 0), time.Unix(149, 0)))
}

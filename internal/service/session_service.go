package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"parkaro/internal/apperr"
	"parkaro/internal/charging"
	"parkaro/internal/domain"
	"parkaro/internal/metrics"
	"parkaro/internal/pricing"
	"parkaro/internal/repository"
)

// SlotPool is the occupancy view the coordinator assigns from.
type SlotPool interface {
	Snapshot() *domain.OccupancySnapshot
	Reserve(slot int)
	Release(slot int)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type SessionOptions struct {
	StaleAfter time.Duration
	SlotLabel  func(slot int) string
}

// SessionService runs check-in and check-out. Both hold mu for their whole
// read-assign-persist sequence, so no two callers can be handed the same
// slot and no user can hold two active sessions.
type SessionService struct {
	store    repository.Store
	pool     SlotPool
	charging *charging.Service
	pricing  pricing.Engine
	clock    clockwork.Clock
	notifier Notifier
	logger   *zerolog.Logger
	opts     SessionOptions

	mu sync.Mutex
}

func NewSessionService(
	store repository.Store,
	pool SlotPool,
	chargingService *charging.Service,
	engine pricing.Engine,
	clock clockwork.Clock,
	notifier Notifier,
	logger *zerolog.Logger,
	opts SessionOptions,
) *SessionService {
	if opts.SlotLabel == nil {
		opts.SlotLabel = func(slot int) string { return fmt.Sprintf("%d", slot) }
	}
	return &SessionService{
		store:    store,
		pool:     pool,
		charging: chargingService,
		pricing:  engine,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

func (s *SessionService) CheckIn(ctx context.Context, qrCode string, startLevel *int) (*domain.CheckInResult, error) {
	// 1. Resolve the QR identity
	user, err := s.userByQR(ctx, qrCode)
	if err != nil {
		metrics.IncCheckIn("unknown_user")
		return nil, err
	}
	level, err := s.charging.StartLevel(startLevel)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 2. Reject a second active session for the same user
	if _, err := s.store.Repositories().ParkingSessions.FindActiveByUserID(ctx, user.ID); err == nil {
		metrics.IncCheckIn("already_active")
		return nil, apperr.Newf(apperr.KindAlreadyActive, "%s already has an active parking session", user.Username)
	} else if !errors.Is(err, repository.ErrNoActiveSession) {
		return nil, apperr.Storage("ParkingSessionRepository.FindActiveByUserID", err)
	}

	// 3. Take the lowest free slot. If the store says it is taken after all,
	// mark it reserved and move to the next one.
	snap := s.pool.Snapshot()
	var (
		ps *domain.ParkingSession
		cs *domain.ChargingSession
	)
	for _, slot := range snap.Free {
		ps, cs, err = s.persistCheckIn(ctx, user, slot, level)
		if err == nil {
			break
		}
		if !errors.Is(err, errSlotTaken) {
			metrics.IncCheckIn("error")
			return nil, err
		}
		s.logger.Warn().Int("slot", slot).Msg("slot free in snapshot but held in ledger; trying next")
		s.pool.Reserve(slot)
	}
	if ps == nil {
		metrics.IncCheckIn("no_capacity")
		return nil, apperr.Newf(apperr.KindNoCapacity, "all %d slots are occupied", snap.Total)
	}

	// 4. Publish the reservation before anyone else can read the snapshot
	s.pool.Reserve(ps.Slot)
	metrics.IncCheckIn("ok")

	label := s.opts.SlotLabel(ps.Slot)
	s.logger.Info().Int("user_id", user.ID).Int("slot", ps.Slot).Int("session_id", ps.ID).
		Int("charging_session_id", cs.ID).Msg("checked in")
	s.notifier.Notify(ctx, domain.Notification{
		Type:      domain.NotificationSlotAssigned,
		Timestamp: ps.CheckInTime,
		Slot:      ps.Slot,
		SessionID: ps.ID,
		UserID:    user.ID,
		Message:   fmt.Sprintf("Slot %s assigned to %s", label, user.Username),
	})

	return &domain.CheckInResult{
		UserID:            user.ID,
		Username:          user.Username,
		VehicleType:       user.VehicleType,
		AssignedSlot:      ps.Slot,
		ParkingSessionID:  ps.ID,
		ChargingSessionID: cs.ID,
		StartChargeLevel:  cs.StartChargeLevel,
		CheckInTime:       ps.CheckInTime,
		FreeSpaces:        s.pool.Snapshot().FreeCount(),
		TotalSpaces:       snap.Total,
		Message: fmt.Sprintf("Welcome %s! Assigned to slot %s. Charging started at %d%%. Free parking for the first %d minutes!",
			user.Username, label, cs.StartChargeLevel, s.pricing.FreeMinutes),
	}, nil
}

var errSlotTaken = errors.New("slot already held by an active session")

func (s *SessionService) persistCheckIn(ctx context.Context, user *domain.User, slot, level int) (*domain.ParkingSession, *domain.ChargingSession, error) {
	var (
		ps  *domain.ParkingSession
		cs  *domain.ChargingSession
		now = s.clock.Now().UTC()
	)
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		ps, err = repos.ParkingSessions.Create(ctx, &domain.ParkingSession{
			UserID:      user.ID,
			QRCode:      user.QRCode,
			Slot:        slot,
			CheckInTime: now,
			Status:      domain.SessionActive,
		})
		if err != nil {
			return err
		}
		cs, err = s.charging.Begin(ctx, repos, ps, level)
		return err
	})
	if err == nil {
		return ps, cs, nil
	}

	if errors.Is(err, repository.ErrDuplicateEntry) {
		// The user check already passed under mu, so a duplicate here is
		// either a concurrent writer outside this process or the slot.
		if _, findErr := s.store.Repositories().ParkingSessions.FindActiveByUserID(ctx, user.ID); findErr == nil {
			return nil, nil, apperr.Newf(apperr.KindAlreadyActive, "%s already has an active parking session", user.Username)
		}
		return nil, nil, errSlotTaken
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return nil, nil, err
	}
	return nil, nil, apperr.Storage("check-in transaction", err)
}

func (s *SessionService) CheckOut(ctx context.Context, qrCode string) (*domain.CheckOutResult, error) {
	// 1. Resolve the QR identity
	user, err := s.userByQR(ctx, qrCode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 2. Find the active session
	repos := s.store.Repositories()
	ps, err := repos.ParkingSessions.FindActiveByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, apperr.Newf(apperr.KindNoActiveSession, "%s has no active parking session", user.Username)
		}
		return nil, apperr.Storage("ParkingSessionRepository.FindActiveByUserID", err)
	}

	// 3. Price the stay
	now := s.clock.Now().UTC()
	minutes := durationMinutes(ps.CheckInTime, now)
	quote, err := s.pricing.Price(minutes)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		s.logger.Warn().Int("session_id", ps.ID).Time("check_in_time", ps.CheckInTime).Time("now", now).
			Int("billed_minutes", quote.Minutes).Msg("non-positive parking duration")
	}

	// 4. Stop charging, close the session and record the payment atomically.
	// A charging session started after the lookup sends us round again.
	var stopped *domain.ChargingSession
	for attempt := 1; ; attempt++ {
		stopped, err = s.closeSession(ctx, user, ps, now, quote)
		if !errors.Is(err, errChargingChanged) || attempt == maxCloseAttempts {
			break
		}
		s.logger.Debug().Int("session_id", ps.ID).Int("attempt", attempt).Msg("charging session changed during check-out; retrying")
	}
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, apperr.Newf(apperr.KindNoActiveSession, "%s has no active parking session", user.Username)
		}
		if errors.Is(err, errChargingChanged) {
			return nil, apperr.Wrap(apperr.KindConflict, "charging session changed during check-out; try again", err)
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Storage("check-out transaction", err)
	}

	// 5. Only now, with the ledger write durable, free the slot
	s.pool.Release(ps.Slot)
	metrics.ObserveCheckOut(quote.Amount)

	res := &domain.CheckOutResult{
		UserID:           user.ID,
		Username:         user.Username,
		ParkingSessionID: ps.ID,
		Slot:             ps.Slot,
		CheckInTime:      ps.CheckInTime,
		CheckOutTime:     now,
		DurationMinutes:  quote.Minutes,
		DurationDisplay:  formatDuration(quote.Minutes),
		Amount:           quote.Amount,
		RateDescription:  quote.RateDescription,
	}
	if stopped != nil && stopped.CompletionTime.Valid {
		if dwell, ok := charging.FullFor(*stopped, now); ok {
			res.BatteryFullDwell = &dwell
			res.BatteryFullLabel = formatDwell(dwell)
		}
	}
	res.Message = fmt.Sprintf("Check-out successful for %s! Duration: %s. Amount: %s%.2f (%s)",
		user.Username, res.DurationDisplay, s.pricing.Currency, quote.Amount, quote.RateDescription)

	s.logger.Info().Int("user_id", user.ID).Int("slot", ps.Slot).Int("session_id", ps.ID).
		Int("minutes", quote.Minutes).Float64("amount", quote.Amount).Msg("checked out")
	s.notifier.Notify(ctx, domain.Notification{
		Type:      domain.NotificationCheckedOut,
		Timestamp: now,
		Slot:      ps.Slot,
		SessionID: ps.ID,
		UserID:    user.ID,
	})
	return res, nil
}

const maxCloseAttempts = 3

var errChargingChanged = errors.New("charging session changed since it was locked")

// closeSession holds the parking session's latest charging session, then
// in one transaction locks the parking row, checks that the charging
// session is still the latest one and stops it, completes the parking
// session and records the payment.
func (s *SessionService) closeSession(ctx context.Context, user *domain.User, ps *domain.ParkingSession,
	now time.Time, quote pricing.Quote) (*domain.ChargingSession, error) {
	held, err := s.store.Repositories().ChargingSessions.FindByParkingSessionID(ctx, ps.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Storage("ChargingSessionRepository.FindByParkingSessionID", err)
	}
	heldID := 0
	if held != nil {
		heldID = held.ID
		unlock := s.charging.Lock(held.ID)
		defer unlock()
	}

	var stopped *domain.ChargingSession
	err = s.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if _, err := tx.ParkingSessions.LockActive(ctx, ps.ID); err != nil {
			return err
		}
		current, err := tx.ChargingSessions.FindByParkingSessionID(ctx, ps.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if (current == nil && heldID != 0) || (current != nil && current.ID != heldID) {
			return errChargingChanged
		}
		if current != nil {
			if stopped, err = s.charging.StopLocked(ctx, tx, current.ID); err != nil {
				return err
			}
		}

		ps.CheckOutTime = null.TimeFrom(now)
		ps.DurationMinutes = quote.Minutes
		ps.TotalAmount = quote.Amount
		if _, err := tx.ParkingSessions.Complete(ctx, ps); err != nil {
			return err
		}
		status := domain.PaymentPending
		if quote.Amount == 0 {
			status = domain.PaymentWaived
		}
		_, err = tx.Payments.Create(ctx, &domain.Payment{
			UserID:      user.ID,
			SessionID:   ps.ID,
			Amount:      quote.Amount,
			Status:      status,
			PaymentTime: now,
		})
		return err
	})
	return stopped, err
}

// Scan toggles: a user with an active session is checked out, anyone else
// is checked in.
func (s *SessionService) Scan(ctx context.Context, qrCode string) (*domain.ScanResult, error) {
	user, err := s.userByQR(ctx, qrCode)
	if err != nil {
		return nil, err
	}

	_, err = s.store.Repositories().ParkingSessions.FindActiveByUserID(ctx, user.ID)
	switch {
	case err == nil:
		out, err := s.CheckOut(ctx, qrCode)
		if err != nil {
			return nil, err
		}
		return &domain.ScanResult{Type: domain.ScanCheckOut, CheckOut: out}, nil
	case errors.Is(err, repository.ErrNoActiveSession):
		in, err := s.CheckIn(ctx, qrCode, nil)
		if err != nil {
			return nil, err
		}
		return &domain.ScanResult{Type: domain.ScanCheckIn, CheckIn: in}, nil
	default:
		return nil, apperr.Storage("ParkingSessionRepository.FindActiveByUserID", err)
	}
}

func (s *SessionService) Status() domain.ParkingStatusView {
	return domain.NewParkingStatusView(s.pool.Snapshot())
}

func (s *SessionService) UserActiveSession(ctx context.Context, userID int) (*domain.ParkingSession, error) {
	ps, err := s.store.Repositories().ParkingSessions.FindActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, apperr.New(apperr.KindNoActiveSession, "no active parking session")
		}
		return nil, apperr.Storage("ParkingSessionRepository.FindActiveByUserID", err)
	}
	return ps, nil
}

func (s *SessionService) FindSessions(ctx context.Context, filter domain.ParkingSessionFilterDTO) ([]domain.ParkingSession, error) {
	sessions, err := s.store.Repositories().ParkingSessions.Find(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("ParkingSessionRepository.Find", err)
	}
	return sessions, nil
}

// AuditStaleSessions reports active sessions older than the configured
// threshold. Sessions are left untouched; only an operator can resolve them.
func (s *SessionService) AuditStaleSessions(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-s.opts.StaleAfter)
	stale, err := s.store.Repositories().ParkingSessions.FindActiveCheckedInBefore(ctx, cutoff)
	if err != nil {
		return 0, apperr.Storage("ParkingSessionRepository.FindActiveCheckedInBefore", err)
	}
	for _, ps := range stale {
		s.logger.Warn().Int("session_id", ps.ID).Int("user_id", ps.UserID).Int("slot", ps.Slot).
			Time("check_in_time", ps.CheckInTime).Msg("stale active parking session")
	}
	metrics.SetStaleSessions(len(stale))
	return len(stale), nil
}

func (s *SessionService) userByQR(ctx context.Context, qrCode string) (*domain.User, error) {
	user, err := s.store.Repositories().Users.FindByQRCode(ctx, qrCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "unknown QR code")
		}
		return nil, apperr.Storage("UserRepository.FindByQRCode", err)
	}
	return user, nil
}

// durationMinutes rounds the elapsed time to the nearest whole minute.
func durationMinutes(checkIn, checkOut time.Time) int {
	return int(math.Round(checkOut.Sub(checkIn).Minutes()))
}

func formatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	if rest := minutes % 60; rest > 0 {
		return fmt.Sprintf("%dh %dm", minutes/60, rest)
	}
	return fmt.Sprintf("%dh", minutes/60)
}

func formatDwell(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

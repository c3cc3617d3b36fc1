package charging

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"parkaro/internal/apperr"
	"parkaro/internal/domain"
	"parkaro/internal/metrics"
	"parkaro/internal/repository"
)

// Notifier receives the one-shot full-charge alert.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Options struct {
	BatteryKWh    float64
	RateKW        float64
	StartLevelMin int
	StartLevelMax int
}

type Service struct {
	store    repository.Store
	clock    clockwork.Clock
	notifier Notifier
	logger   *zerolog.Logger
	opts     Options
	locks    *sessionLocks
	randIntN func(n int) int
}

func NewService(store repository.Store, clock clockwork.Clock, notifier Notifier, logger *zerolog.Logger, opts Options) *Service {
	return &Service{
		store:    store,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		locks:    newSessionLocks(),
		randIntN: rand.IntN,
	}
}

// Lock serializes all state changes of one charging session. The returned
// func releases it.
func (s *Service) Lock(sessionID int) func() {
	return s.locks.lock(sessionID)
}

// StartLevel returns the requested level, or a random one in the configured
// range when none was supplied.
func (s *Service) StartLevel(requested *int) (int, error) {
	if requested != nil {
		if *requested < 0 || *requested > domain.FullChargeLevel {
			return 0, apperr.Newf(apperr.KindInvalidLevel, "start charge level %d is outside [0,100]", *requested)
		}
		return *requested, nil
	}
	span := s.opts.StartLevelMax - s.opts.StartLevelMin + 1
	return s.opts.StartLevelMin + s.randIntN(span), nil
}

// Begin creates an active charging session bound to ps through repos, which
// the caller normally obtained from an open transaction.
func (s *Service) Begin(ctx context.Context, repos repository.Repositories, ps *domain.ParkingSession, level int) (*domain.ChargingSession, error) {
	cs, err := repos.ChargingSessions.Create(ctx, &domain.ChargingSession{
		UserID:             ps.UserID,
		ParkingSessionID:   ps.ID,
		StartChargeLevel:   level,
		CurrentChargeLevel: level,
		Status:             domain.ChargingActive,
		StartTime:          s.clock.Now().UTC(),
		ChargingRateKW:     s.opts.RateKW,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, apperr.Wrap(apperr.KindAlreadyActive, "a charging session is already running for this parking session", err)
		}
		return nil, apperr.Storage("ChargingSessionRepository.Create", err)
	}
	return cs, nil
}

// UpdateLevel applies a charge-level reading from a terminal.
func (s *Service) UpdateLevel(ctx context.Context, sessionID, level int) (*domain.ChargeUpdateResult, error) {
	unlock := s.Lock(sessionID)
	defer unlock()

	repos := s.store.Repositories()
	cs, err := repos.ChargingSessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "charging session %d not found", sessionID)
		}
		return nil, apperr.Storage("ChargingSessionRepository.FindByID", err)
	}

	now := s.clock.Now().UTC()
	next, outcome, err := Apply(*cs, level, now)
	if err != nil {
		metrics.IncChargingUpdate("rejected")
		return nil, err
	}
	if next != *cs {
		if _, err := repos.ChargingSessions.Update(ctx, &next); err != nil {
			return nil, apperr.Storage("ChargingSessionRepository.Update", err)
		}
	}
	metrics.IncChargingUpdate(string(outcome))

	res := &domain.ChargeUpdateResult{
		SessionID:      sessionID,
		ChargeLevel:    next.CurrentChargeLevel,
		Outcome:        outcome,
		CompletionTime: next.CompletionTime,
	}
	switch outcome {
	case domain.OutcomeFirstTimeComplete:
		res.Message = "Battery fully charged"
		s.logger.Info().Int("charging_session_id", sessionID).Int("user_id", next.UserID).Msg("battery reached full charge")
		s.notifier.Notify(ctx, domain.Notification{
			Type:      domain.NotificationChargingComplete,
			Timestamp: now,
			SessionID: sessionID,
			UserID:    next.UserID,
			Message:   "Battery fully charged",
		})
	case domain.OutcomeAlreadyComplete:
		res.Message = "Battery already fully charged"
	default:
		res.Message = fmt.Sprintf("Charging at %d%%", next.CurrentChargeLevel)
	}
	return res, nil
}

// Stop ends a charging session. Unknown and already-stopped sessions are a
// no-op.
func (s *Service) Stop(ctx context.Context, sessionID int) error {
	unlock := s.Lock(sessionID)
	defer unlock()
	_, err := s.StopLocked(ctx, s.store.Repositories(), sessionID)
	return err
}

// StopOwned stops a session on behalf of userID. A session that does not
// exist or belongs to someone else is reported as not found.
func (s *Service) StopOwned(ctx context.Context, sessionID, userID int) error {
	unlock := s.Lock(sessionID)
	defer unlock()

	repos := s.store.Repositories()
	cs, err := repos.ChargingSessions.FindByID(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Storage("ChargingSessionRepository.FindByID", err)
	}
	if cs == nil || cs.UserID != userID {
		return apperr.Newf(apperr.KindNotFound, "charging session %d not found", sessionID)
	}
	_, err = s.StopLocked(ctx, repos, sessionID)
	return err
}

// StopLocked stops the session through repos. The caller must hold
// Lock(sessionID).
func (s *Service) StopLocked(ctx context.Context, repos repository.Repositories, sessionID int) (*domain.ChargingSession, error) {
	cs, err := repos.ChargingSessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Storage("ChargingSessionRepository.FindByID", err)
	}

	stopped, changed := Stop(*cs, s.clock.Now().UTC(), s.opts.BatteryKWh)
	if !changed {
		return cs, nil
	}
	if _, err := repos.ChargingSessions.Update(ctx, &stopped); err != nil {
		return nil, apperr.Storage("ChargingSessionRepository.Update", err)
	}
	s.logger.Debug().Int("charging_session_id", sessionID).Float64("energy_kwh", stopped.TotalEnergyKWh).Msg("charging stopped")
	return &stopped, nil
}

// Start begins charging for a parked user who has no live charging session.
func (s *Service) Start(ctx context.Context, userID int, requested *int) (*domain.ChargingSession, error) {
	level, err := s.StartLevel(requested)
	if err != nil {
		return nil, err
	}

	ps, err := s.store.Repositories().ParkingSessions.FindActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, apperr.New(apperr.KindNoActiveSession, "check in before starting to charge")
		}
		return nil, apperr.Storage("ParkingSessionRepository.FindActiveByUserID", err)
	}

	// A check-out may have completed ps since it was read above
	var cs *domain.ChargingSession
	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		live, err := repos.ParkingSessions.LockActive(ctx, ps.ID)
		if err != nil {
			return err
		}
		cs, err = s.Begin(ctx, repos, live, level)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, apperr.New(apperr.KindNoActiveSession, "check in before starting to charge")
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Storage("ParkingSessionRepository.LockActive", err)
	}
	s.logger.Info().Int("user_id", userID).Int("charging_session_id", cs.ID).Int("level", level).Msg("charging started")
	return cs, nil
}

// Status returns the user's most recent charging session.
func (s *Service) Status(ctx context.Context, userID int) (*domain.ChargingStatusView, error) {
	cs, err := s.store.Repositories().ChargingSessions.FindLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNoActiveSession, "no charging session found")
		}
		return nil, apperr.Storage("ChargingSessionRepository.FindLatestByUserID", err)
	}

	view := &domain.ChargingStatusView{
		SessionID:        cs.ID,
		ParkingSessionID: cs.ParkingSessionID,
		StartChargeLevel: cs.StartChargeLevel,
		CurrentLevel:     cs.CurrentChargeLevel,
		Status:           cs.Status,
		StartTime:        cs.StartTime,
		CompletionTime:   cs.CompletionTime,
	}
	if d, ok := FullFor(*cs, s.clock.Now().UTC()); ok {
		view.FullForSeconds = int64(d.Seconds())
	}
	return view, nil
}

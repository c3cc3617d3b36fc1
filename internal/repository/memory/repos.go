package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

type userRepository struct {
	do access
}

func (r *userRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	err := r.do(func(t *tables) error {
		for _, u := range t.users {
			switch {
			case u.Username == user.Username:
				return fmt.Errorf("%w: username %q", repository.ErrDuplicateEntry, user.Username)
			case u.Email == user.Email:
				return fmt.Errorf("%w: email %q", repository.ErrDuplicateEntry, user.Email)
			case u.QRCode == user.QRCode:
				return fmt.Errorf("%w: qr code", repository.ErrDuplicateEntry)
			}
		}
		now := time.Now().UTC()
		user.ID = t.id("users")
		user.CreatedAt, user.UpdatedAt = now, now
		t.users[user.ID] = *user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.findFirst(func(u domain.User) bool { return u.Username == username })
}

func (r *userRepository) FindByID(_ context.Context, id int) (*domain.User, error) {
	return r.findFirst(func(u domain.User) bool { return u.ID == id })
}

func (r *userRepository) FindByQRCode(_ context.Context, qrCode string) (*domain.User, error) {
	return r.findFirst(func(u domain.User) bool { return u.QRCode == qrCode })
}

func (r *userRepository) findFirst(match func(domain.User) bool) (*domain.User, error) {
	var found *domain.User
	_ = r.do(func(t *tables) error {
		for _, u := range t.users {
			if match(u) {
				u := u
				found = &u
				return nil
			}
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

type parkingSessionRepository struct {
	do access
}

func (r *parkingSessionRepository) Create(_ context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	err := r.do(func(t *tables) error {
		for _, s := range t.parkingSessions {
			if !s.IsActive() {
				continue
			}
			if s.UserID == session.UserID {
				return fmt.Errorf("%w: user %d already has an active session", repository.ErrDuplicateEntry, session.UserID)
			}
			if s.Slot == session.Slot {
				return fmt.Errorf("%w: slot %d already has an active session", repository.ErrDuplicateEntry, session.Slot)
			}
		}
		now := time.Now().UTC()
		session.ID = t.id("parking_sessions")
		session.Status = domain.SessionActive
		session.CreatedAt, session.UpdatedAt = now, now
		t.parkingSessions[session.ID] = *session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *parkingSessionRepository) FindByID(_ context.Context, id int) (*domain.ParkingSession, error) {
	var found *domain.ParkingSession
	_ = r.do(func(t *tables) error {
		if s, ok := t.parkingSessions[id]; ok {
			found = &s
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *parkingSessionRepository) FindActiveByUserID(_ context.Context, userID int) (*domain.ParkingSession, error) {
	var found *domain.ParkingSession
	_ = r.do(func(t *tables) error {
		for _, s := range t.parkingSessions {
			if s.UserID == userID && s.IsActive() {
				s := s
				found = &s
				return nil
			}
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNoActiveSession
	}
	return found, nil
}

// LockActive relies on WithinTx holding the store lock for the whole
// transaction.
func (r *parkingSessionRepository) LockActive(_ context.Context, id int) (*domain.ParkingSession, error) {
	var found *domain.ParkingSession
	_ = r.do(func(t *tables) error {
		if s, ok := t.parkingSessions[id]; ok && s.IsActive() {
			found = &s
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNoActiveSession
	}
	return found, nil
}

func (r *parkingSessionRepository) Complete(_ context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	err := r.do(func(t *tables) error {
		stored, ok := t.parkingSessions[session.ID]
		if !ok || !stored.IsActive() {
			return repository.ErrNoActiveSession
		}
		stored.CheckOutTime = session.CheckOutTime
		stored.DurationMinutes = session.DurationMinutes
		stored.TotalAmount = session.TotalAmount
		stored.Status = domain.SessionCompleted
		stored.UpdatedAt = time.Now().UTC()
		t.parkingSessions[session.ID] = stored
		*session = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *parkingSessionRepository) ActiveSlots(_ context.Context) ([]int, error) {
	var slots []int
	_ = r.do(func(t *tables) error {
		for _, s := range t.parkingSessions {
			if s.IsActive() {
				slots = append(slots, s.Slot)
			}
		}
		return nil
	})
	sort.Ints(slots)
	return slots, nil
}

func (r *parkingSessionRepository) FindActiveCheckedInBefore(_ context.Context, cutoff time.Time) ([]domain.ParkingSession, error) {
	sessions := r.collect(func(s domain.ParkingSession) bool {
		return s.IsActive() && s.CheckInTime.Before(cutoff)
	})
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CheckInTime.Before(sessions[j].CheckInTime) })
	return sessions, nil
}

func (r *parkingSessionRepository) Find(_ context.Context, filter domain.ParkingSessionFilterDTO) ([]domain.ParkingSession, error) {
	sessions := r.collect(func(s domain.ParkingSession) bool {
		if filter.UserID != nil && s.UserID != *filter.UserID {
			return false
		}
		if filter.Status != nil && string(s.Status) != *filter.Status {
			return false
		}
		return true
	})
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CheckInTime.After(sessions[j].CheckInTime) })
	return sessions, nil
}

func (r *parkingSessionRepository) collect(match func(domain.ParkingSession) bool) []domain.ParkingSession {
	var out []domain.ParkingSession
	_ = r.do(func(t *tables) error {
		for _, s := range t.parkingSessions {
			if match(s) {
				out = append(out, s)
			}
		}
		return nil
	})
	return out
}

type chargingSessionRepository struct {
	do access
}

func (r *chargingSessionRepository) Create(_ context.Context, cs *domain.ChargingSession) (*domain.ChargingSession, error) {
	err := r.do(func(t *tables) error {
		for _, existing := range t.chargingSessions {
			if existing.ParkingSessionID == cs.ParkingSessionID && existing.Live() {
				return fmt.Errorf("%w: parking session %d already has a live charging session",
					repository.ErrDuplicateEntry, cs.ParkingSessionID)
			}
		}
		cs.ID = t.id("charging_sessions")
		cs.UpdatedAt = time.Now().UTC()
		t.chargingSessions[cs.ID] = *cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *chargingSessionRepository) FindByID(_ context.Context, id int) (*domain.ChargingSession, error) {
	var found *domain.ChargingSession
	_ = r.do(func(t *tables) error {
		if cs, ok := t.chargingSessions[id]; ok {
			found = &cs
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *chargingSessionRepository) FindByParkingSessionID(_ context.Context, parkingSessionID int) (*domain.ChargingSession, error) {
	return r.latest(func(cs domain.ChargingSession) bool { return cs.ParkingSessionID == parkingSessionID })
}

func (r *chargingSessionRepository) FindLatestByUserID(_ context.Context, userID int) (*domain.ChargingSession, error) {
	return r.latest(func(cs domain.ChargingSession) bool { return cs.UserID == userID })
}

// latest picks the highest id among matches; ids grow with creation time.
func (r *chargingSessionRepository) latest(match func(domain.ChargingSession) bool) (*domain.ChargingSession, error) {
	var found *domain.ChargingSession
	_ = r.do(func(t *tables) error {
		for _, cs := range t.chargingSessions {
			if match(cs) && (found == nil || cs.ID > found.ID) {
				cs := cs
				found = &cs
			}
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *chargingSessionRepository) Update(_ context.Context, cs *domain.ChargingSession) (*domain.ChargingSession, error) {
	err := r.do(func(t *tables) error {
		if _, ok := t.chargingSessions[cs.ID]; !ok {
			return repository.ErrNotFound
		}
		cs.UpdatedAt = time.Now().UTC()
		t.chargingSessions[cs.ID] = *cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

type paymentRepository struct {
	do access
}

func (r *paymentRepository) Create(_ context.Context, p *domain.Payment) (*domain.Payment, error) {
	err := r.do(func(t *tables) error {
		for _, existing := range t.payments {
			if existing.SessionID == p.SessionID {
				return fmt.Errorf("%w: payment for session %d", repository.ErrDuplicateEntry, p.SessionID)
			}
		}
		p.ID = t.id("payments")
		t.payments[p.ID] = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) FindBySessionID(_ context.Context, sessionID int) (*domain.Payment, error) {
	var found *domain.Payment
	_ = r.do(func(t *tables) error {
		for _, p := range t.payments {
			if p.SessionID == sessionID {
				p := p
				found = &p
				return nil
			}
		}
		return nil
	})
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

type sensorEventLogRepository struct {
	do access
}

func (r *sensorEventLogRepository) Create(_ context.Context, event *domain.SensorEventLog) error {
	return r.do(func(t *tables) error {
		event.ID = int64(t.id("sensor_events"))
		t.sensorEvents = append(t.sensorEvents, *event)
		return nil
	})
}

func (r *sensorEventLogRepository) Recent(_ context.Context, limit int) ([]domain.SensorEventLog, error) {
	var events []domain.SensorEventLog
	_ = r.do(func(t *tables) error {
		for i := len(t.sensorEvents) - 1; i >= 0 && len(events) < limit; i-- {
			events = append(events, t.sensorEvents[i])
		}
		return nil
	})
	return events, nil
}

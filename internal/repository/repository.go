package repository

import (
	"context"
	"errors"
	"time"

	"parkaro/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")
var ErrNoActiveSession = errors.New("no active parking session for the given identity")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
	FindByQRCode(ctx context.Context, qrCode string) (*domain.User, error)
}

type ParkingSessionRepository interface {
	// Create inserts an active session. A second active session for the same
	// user or slot fails with ErrDuplicateEntry.
	Create(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingSession, error)
	FindActiveByUserID(ctx context.Context, userID int) (*domain.ParkingSession, error)
	// LockActive re-reads the session and holds its row until the enclosing
	// transaction ends. It fails with ErrNoActiveSession unless the session
	// is still active.
	LockActive(ctx context.Context, id int) (*domain.ParkingSession, error)
	// Complete moves an active session to completed. It fails with
	// ErrNoActiveSession if the row is no longer active.
	Complete(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
	ActiveSlots(ctx context.Context) ([]int, error)
	FindActiveCheckedInBefore(ctx context.Context, cutoff time.Time) ([]domain.ParkingSession, error)
	Find(ctx context.Context, filter domain.ParkingSessionFilterDTO) ([]domain.ParkingSession, error)
}

type ChargingSessionRepository interface {
	// Create fails with ErrDuplicateEntry when the parking session already
	// has a live (active or complete) charging session.
	Create(ctx context.Context, session *domain.ChargingSession) (*domain.ChargingSession, error)
	FindByID(ctx context.Context, id int) (*domain.ChargingSession, error)
	// FindByParkingSessionID returns the most recent charging session bound
	// to the parking session.
	FindByParkingSessionID(ctx context.Context, parkingSessionID int) (*domain.ChargingSession, error)
	FindLatestByUserID(ctx context.Context, userID int) (*domain.ChargingSession, error)
	Update(ctx context.Context, session *domain.ChargingSession) (*domain.ChargingSession, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	FindBySessionID(ctx context.Context, sessionID int) (*domain.Payment, error)
}

type SensorEventLogRepository interface {
	Create(ctx context.Context, event *domain.SensorEventLog) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]domain.SensorEventLog, error)
}

// Repositories groups the repositories bound to one connection or one
// transaction.
type Repositories struct {
	Users            UserRepository
	ParkingSessions  ParkingSessionRepository
	ChargingSessions ChargingSessionRepository
	Payments         PaymentRepository
	SensorEvents     SensorEventLogRepository
}

// Store hands out repositories and runs multi-step writes atomically.
type Store interface {
	Repositories() Repositories
	// WithinTx runs fn against repositories bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}

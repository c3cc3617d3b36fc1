package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

type pgParkingSessionRepository struct {
	db queryer
}

const parkingSessionColumns = `id, user_id, qr_code, slot, check_in_time, check_out_time, status,
	duration_minutes, total_amount, created_at, updated_at`

func scanParkingSession(row rowScanner, session *domain.ParkingSession) error {
	if err := row.Scan(
		&session.ID, &session.UserID, &session.QRCode, &session.Slot, &session.CheckInTime,
		&session.CheckOutTime, &session.Status, &session.DurationMinutes, &session.TotalAmount,
		&session.CreatedAt, &session.UpdatedAt,
	); err != nil {
		return err
	}
	session.CheckInTime = session.CheckInTime.In(time.UTC)
	if session.CheckOutTime.Valid {
		session.CheckOutTime.Time = session.CheckOutTime.Time.In(time.UTC)
	}
	session.CreatedAt = session.CreatedAt.In(time.UTC)
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return nil
}

func (r *pgParkingSessionRepository) Create(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `INSERT INTO parking_sessions
	           (user_id, qr_code, slot, check_in_time, status, duration_minutes, total_amount, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		session.UserID, session.QRCode, session.Slot, session.CheckInTime, domain.SessionActive,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: parking session violates %s", repository.ErrDuplicateEntry, constraint)
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Create: %w", err)
	}
	session.Status = domain.SessionActive
	session.CreatedAt = session.CreatedAt.In(time.UTC)
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}

func (r *pgParkingSessionRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSession, error) {
	session := &domain.ParkingSession{}
	query := `SELECT ` + parkingSessionColumns + ` FROM parking_sessions WHERE id = $1`

	if err := scanParkingSession(r.db.QueryRowContext(ctx, query, id), session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindByID: %w", err)
	}
	return session, nil
}

func (r *pgParkingSessionRepository) FindActiveByUserID(ctx context.Context, userID int) (*domain.ParkingSession, error) {
	session := &domain.ParkingSession{}
	query := `SELECT ` + parkingSessionColumns + ` FROM parking_sessions
	           WHERE user_id = $1 AND status = $2
	           ORDER BY check_in_time DESC LIMIT 1`

	if err := scanParkingSession(r.db.QueryRowContext(ctx, query, userID, domain.SessionActive), session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindActiveByUserID: %w", err)
	}
	return session, nil
}

func (r *pgParkingSessionRepository) LockActive(ctx context.Context, id int) (*domain.ParkingSession, error) {
	session := &domain.ParkingSession{}
	query := `SELECT ` + parkingSessionColumns + ` FROM parking_sessions WHERE id = $1 FOR UPDATE`

	if err := scanParkingSession(r.db.QueryRowContext(ctx, query, id), session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.LockActive: %w", err)
	}
	if !session.IsActive() {
		return nil, repository.ErrNoActiveSession
	}
	return session, nil
}

func (r *pgParkingSessionRepository) Complete(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `UPDATE parking_sessions
	           SET check_out_time = $1, duration_minutes = $2, total_amount = $3, status = $4,
	               updated_at = CURRENT_TIMESTAMP
	           WHERE id = $5 AND status = $6
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		session.CheckOutTime, session.DurationMinutes, session.TotalAmount, domain.SessionCompleted,
		session.ID, domain.SessionActive,
	).Scan(&session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Complete: %w", err)
	}
	session.Status = domain.SessionCompleted
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}

func (r *pgParkingSessionRepository) ActiveSlots(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT slot FROM parking_sessions WHERE status = $1 ORDER BY slot`, domain.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.ActiveSlots: %w", err)
	}
	defer rows.Close()

	var slots []int
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("ParkingSessionRepository.ActiveSlots (scanning row): %w", err)
		}
		slots = append(slots, slot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.ActiveSlots (rows error): %w", err)
	}
	return slots, nil
}

func (r *pgParkingSessionRepository) FindActiveCheckedInBefore(ctx context.Context, cutoff time.Time) ([]domain.ParkingSession, error) {
	query := `SELECT ` + parkingSessionColumns + ` FROM parking_sessions
	           WHERE status = $1 AND check_in_time < $2
	           ORDER BY check_in_time`
	return r.list(ctx, "FindActiveCheckedInBefore", query, domain.SessionActive, cutoff)
}

func (r *pgParkingSessionRepository) Find(ctx context.Context, filter domain.ParkingSessionFilterDTO) ([]domain.ParkingSession, error) {
	var conditions []string
	var args []any
	argID := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argID))
		args = append(args, *filter.UserID)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + parkingSessionColumns + ` FROM parking_sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY check_in_time DESC"

	return r.list(ctx, "Find", query, args...)
}

func (r *pgParkingSessionRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.ParkingSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []domain.ParkingSession
	for rows.Next() {
		var session domain.ParkingSession
		if err := scanParkingSession(rows, &session); err != nil {
			return nil, fmt.Errorf("ParkingSessionRepository.%s (scanning row): %w", op, err)
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.%s (rows error): %w", op, err)
	}
	return sessions, nil
}

package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

type pgChargingSessionRepository struct {
	db queryer
}

const chargingSessionColumns = `id, user_id, parking_session_id, start_charge_level, current_charge_level,
	end_charge_level, status, completion_time, start_time, end_time, charging_rate_kw, total_energy_kwh, updated_at`

func scanChargingSession(row rowScanner, cs *domain.ChargingSession) error {
	if err := row.Scan(
		&cs.ID, &cs.UserID, &cs.ParkingSessionID, &cs.StartChargeLevel, &cs.CurrentChargeLevel,
		&cs.EndChargeLevel, &cs.Status, &cs.CompletionTime, &cs.StartTime, &cs.EndTime,
		&cs.ChargingRateKW, &cs.TotalEnergyKWh, &cs.UpdatedAt,
	); err != nil {
		return err
	}
	cs.StartTime = cs.StartTime.In(time.UTC)
	if cs.CompletionTime.Valid {
		cs.CompletionTime.Time = cs.CompletionTime.Time.In(time.UTC)
	}
	if cs.EndTime.Valid {
		cs.EndTime.Time = cs.EndTime.Time.In(time.UTC)
	}
	cs.UpdatedAt = cs.UpdatedAt.In(time.UTC)
	return nil
}

func (r *pgChargingSessionRepository) Create(ctx context.Context, cs *domain.ChargingSession) (*domain.ChargingSession, error) {
	query := `INSERT INTO charging_sessions
	           (user_id, parking_session_id, start_charge_level, current_charge_level, status,
	            start_time, charging_rate_kw, total_energy_kwh, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, 0, CURRENT_TIMESTAMP)
	           RETURNING id, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		cs.UserID, cs.ParkingSessionID, cs.StartChargeLevel, cs.CurrentChargeLevel, cs.Status,
		cs.StartTime, cs.ChargingRateKW,
	).Scan(&cs.ID, &cs.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: charging session violates %s", repository.ErrDuplicateEntry, constraint)
		}
		return nil, fmt.Errorf("ChargingSessionRepository.Create: %w", err)
	}
	cs.UpdatedAt = cs.UpdatedAt.In(time.UTC)
	return cs, nil
}

func (r *pgChargingSessionRepository) FindByID(ctx context.Context, id int) (*domain.ChargingSession, error) {
	return r.findOne(ctx, "FindByID",
		`SELECT `+chargingSessionColumns+` FROM charging_sessions WHERE id = $1`, id)
}

func (r *pgChargingSessionRepository) FindByParkingSessionID(ctx context.Context, parkingSessionID int) (*domain.ChargingSession, error) {
	return r.findOne(ctx, "FindByParkingSessionID",
		`SELECT `+chargingSessionColumns+` FROM charging_sessions
		 WHERE parking_session_id = $1 ORDER BY id DESC LIMIT 1`, parkingSessionID)
}

func (r *pgChargingSessionRepository) FindLatestByUserID(ctx context.Context, userID int) (*domain.ChargingSession, error) {
	return r.findOne(ctx, "FindLatestByUserID",
		`SELECT `+chargingSessionColumns+` FROM charging_sessions
		 WHERE user_id = $1 ORDER BY start_time DESC, id DESC LIMIT 1`, userID)
}

func (r *pgChargingSessionRepository) Update(ctx context.Context, cs *domain.ChargingSession) (*domain.ChargingSession, error) {
	query := `UPDATE charging_sessions
	           SET current_charge_level = $1, end_charge_level = $2, status = $3, completion_time = $4,
	               end_time = $5, total_energy_kwh = $6, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $7
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		cs.CurrentChargeLevel, cs.EndChargeLevel, cs.Status, cs.CompletionTime,
		cs.EndTime, cs.TotalEnergyKWh, cs.ID,
	).Scan(&cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ChargingSessionRepository.Update: %w", err)
	}
	cs.UpdatedAt = cs.UpdatedAt.In(time.UTC)
	return cs, nil
}

func (r *pgChargingSessionRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.ChargingSession, error) {
	cs := &domain.ChargingSession{}
	if err := scanChargingSession(r.db.QueryRowContext(ctx, query, arg), cs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ChargingSessionRepository.%s: %w", op, err)
	}
	return cs, nil
}

package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parkaro/internal/domain"
)

type pgSensorEventLogRepository struct {
	db queryer
}

func (r *pgSensorEventLogRepository) Create(ctx context.Context, event *domain.SensorEventLog) error {
	query := `INSERT INTO sensor_events_log
	            (received_at, device_id, message_type, payload, processed_status, processing_notes)
	           VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	var payload []byte
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	err := r.db.QueryRowContext(ctx, query,
		event.ReceivedAt,
		sql.NullString{String: event.DeviceID, Valid: event.DeviceID != ""},
		sql.NullString{String: event.MessageType, Valid: event.MessageType != ""},
		payload,
		event.ProcessedStatus,
		sql.NullString{String: event.ProcessingNotes, Valid: event.ProcessingNotes != ""},
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("SensorEventLogRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSensorEventLogRepository) Recent(ctx context.Context, limit int) ([]domain.SensorEventLog, error) {
	query := `SELECT id, received_at, device_id, message_type, payload, processed_status, processing_notes
	           FROM sensor_events_log ORDER BY received_at DESC, id DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("SensorEventLogRepository.Recent: %w", err)
	}
	defer rows.Close()

	var events []domain.SensorEventLog
	for rows.Next() {
		var (
			e                           domain.SensorEventLog
			deviceID, msgType, notes    sql.NullString
			payload                     []byte
		)
		if err := rows.Scan(&e.ID, &e.ReceivedAt, &deviceID, &msgType, &payload, &e.ProcessedStatus, &notes); err != nil {
			return nil, fmt.Errorf("SensorEventLogRepository.Recent (scan): %w", err)
		}
		e.ReceivedAt = e.ReceivedAt.In(time.UTC)
		e.DeviceID, e.MessageType, e.ProcessingNotes = deviceID.String, msgType.String, notes.String
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SensorEventLogRepository.Recent (rows): %w", err)
	}
	return events, nil
}

package postgresql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash TEXT NOT NULL,
		qr_code VARCHAR(128) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'driver',
		vehicle_type VARCHAR(20) NOT NULL DEFAULT 'ev',
		vehicle_number VARCHAR(20) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email),
		CONSTRAINT users_qr_code_key UNIQUE (qr_code)
	)`,

	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		qr_code VARCHAR(128) NOT NULL,
		slot INTEGER NOT NULL CHECK (slot > 0),
		check_in_time TIMESTAMPTZ NOT NULL,
		check_out_time TIMESTAMPTZ,
		status VARCHAR(16) NOT NULL CHECK (status IN ('active', 'completed')),
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		total_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// One active session per user and per slot, enforced by the store.
	`CREATE UNIQUE INDEX IF NOT EXISTS parking_sessions_active_user_key
		ON parking_sessions (user_id) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS parking_sessions_active_slot_key
		ON parking_sessions (slot) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS parking_sessions_check_in_idx ON parking_sessions (check_in_time)`,

	`CREATE TABLE IF NOT EXISTS charging_sessions (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		parking_session_id INTEGER NOT NULL REFERENCES parking_sessions(id),
		start_charge_level INTEGER NOT NULL CHECK (start_charge_level BETWEEN 0 AND 100),
		current_charge_level INTEGER NOT NULL CHECK (current_charge_level BETWEEN 0 AND 100),
		end_charge_level INTEGER,
		status VARCHAR(16) NOT NULL CHECK (status IN ('active', 'complete', 'stopped')),
		completion_time TIMESTAMPTZ,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		charging_rate_kw DOUBLE PRECISION NOT NULL DEFAULT 7.4,
		total_energy_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS charging_sessions_live_key
		ON charging_sessions (parking_session_id) WHERE status IN ('active', 'complete')`,
	`CREATE INDEX IF NOT EXISTS charging_sessions_user_idx ON charging_sessions (user_id)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		session_id INTEGER NOT NULL REFERENCES parking_sessions(id),
		amount NUMERIC(10,2) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		payment_time TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT payments_session_id_key UNIQUE (session_id)
	)`,

	`CREATE TABLE IF NOT EXISTS sensor_events_log (
		id BIGSERIAL PRIMARY KEY,
		received_at TIMESTAMPTZ NOT NULL,
		device_id VARCHAR(128),
		message_type VARCHAR(64),
		payload JSONB,
		processed_status VARCHAR(16) NOT NULL,
		processing_notes TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS sensor_events_log_received_idx ON sensor_events_log (received_at DESC)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}

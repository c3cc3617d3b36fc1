package domain

import (
	"encoding/json"
	"time"
)

// GenericSensorEvent is decoded first to learn message_type before the
// concrete payload is parsed.
type GenericSensorEvent struct {
	DeviceID    string          `json:"device_id"`
	MessageType string          `json:"message_type"`
	Timestamp   string          `json:"timestamp"` // RFC 3339, UTC
	RawPayload  json.RawMessage `json:"-"`
}

const (
	SensorMessageSlotStatus = "slot_status"
	SensorMessageSummary    = "parking_summary"
	SensorMessageHeartbeat  = "heartbeat"
)

// SlotStatusEvent reports a single slot changing state.
type SlotStatusEvent struct {
	GenericSensorEvent
	Slot       int  `json:"slot"`
	IsOccupied bool `json:"is_occupied"`
}

// OccupancySummaryEvent carries the detector's full occupied set and
// replaces whatever the feed held before.
type OccupancySummaryEvent struct {
	GenericSensorEvent
	TotalSlots    int   `json:"total_slots"`
	OccupiedSlots []int `json:"occupied_slots"`
}

const (
	SensorEventProcessed = "processed"
	SensorEventFailed    = "failed"
)

// SensorEventLog is the audit row kept for every detector message received.
type SensorEventLog struct {
	ID              int64           `json:"id"`
	ReceivedAt      time.Time       `json:"received_at"`
	DeviceID        string          `json:"device_id,omitempty"`
	MessageType     string          `json:"message_type,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	ProcessedStatus string          `json:"processed_status"`
	ProcessingNotes string          `json:"processing_notes,omitempty"`
}

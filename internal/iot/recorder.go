package iot

import (
	"context"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

// Recorder writes every message it forwards to the sensor event log along
// with whether the wrapped handler accepted it. A failed log write is only
// logged; it never affects acknowledgement.
type Recorder struct {
	next   Handler
	events repository.SensorEventLogRepository
	clock  clockwork.Clock
	logger *zerolog.Logger
}

func NewRecorder(next Handler, events repository.SensorEventLogRepository, clock clockwork.Clock, logger *zerolog.Logger) *Recorder {
	return &Recorder{next: next, events: events, clock: clock, logger: logger}
}

func (r *Recorder) HandleEvent(ctx context.Context, body string) error {
	entry := &domain.SensorEventLog{
		ReceivedAt:      r.clock.Now().UTC(),
		ProcessedStatus: domain.SensorEventProcessed,
	}

	var header domain.GenericSensorEvent
	if err := json.Unmarshal([]byte(body), &header); err == nil {
		entry.DeviceID = header.DeviceID
		entry.MessageType = header.MessageType
	}
	if json.Valid([]byte(body)) {
		entry.Payload = json.RawMessage(body)
	}

	handleErr := r.next.HandleEvent(ctx, body)
	if handleErr != nil {
		entry.ProcessedStatus = domain.SensorEventFailed
		entry.ProcessingNotes = handleErr.Error()
	}

	if err := r.events.Create(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("device_id", entry.DeviceID).Msg("recording sensor event failed")
	}
	return handleErr
}

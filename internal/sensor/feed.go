package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"parkaro/internal/domain"
)

// Feed keeps the latest occupied set pushed by detector events (delivered
// through SQS). It reports unavailable until the first event arrives and
// whenever the last event is older than staleAfter.
type Feed struct {
	clock      clockwork.Clock
	staleAfter time.Duration
	logger     *zerolog.Logger

	mu       sync.RWMutex
	occupied map[int]struct{}
	lastSeen time.Time
}

func NewFeed(clock clockwork.Clock, staleAfter time.Duration, logger *zerolog.Logger) *Feed {
	return &Feed{
		clock:      clock,
		staleAfter: staleAfter,
		logger:     logger,
		occupied:   make(map[int]struct{}),
	}
}

func (f *Feed) OccupiedSlots(context.Context) ([]int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.lastSeen.IsZero() {
		return nil, fmt.Errorf("%w: no detector event received yet", ErrUnavailable)
	}
	if age := f.clock.Since(f.lastSeen); f.staleAfter > 0 && age > f.staleAfter {
		return nil, fmt.Errorf("%w: last detector event %s ago", ErrUnavailable, age.Round(time.Second))
	}

	slots := make([]int, 0, len(f.occupied))
	for slot := range f.occupied {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	return slots, nil
}

// HandleEvent applies one raw detector message. Unknown message types are
// accepted and dropped so they do not clog the queue.
func (f *Feed) HandleEvent(_ context.Context, body string) error {
	var generic domain.GenericSensorEvent
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return fmt.Errorf("decode sensor event: %w", err)
	}

	switch generic.MessageType {
	case domain.SensorMessageSlotStatus:
		var ev domain.SlotStatusEvent
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			return fmt.Errorf("decode slot_status event: %w", err)
		}
		f.mu.Lock()
		if ev.IsOccupied {
			f.occupied[ev.Slot] = struct{}{}
		} else {
			delete(f.occupied, ev.Slot)
		}
		f.lastSeen = f.clock.Now()
		f.mu.Unlock()

	case domain.SensorMessageSummary:
		var ev domain.OccupancySummaryEvent
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			return fmt.Errorf("decode parking_summary event: %w", err)
		}
		occupied := make(map[int]struct{}, len(ev.OccupiedSlots))
		for _, slot := range ev.OccupiedSlots {
			occupied[slot] = struct{}{}
		}
		f.mu.Lock()
		f.occupied = occupied
		f.lastSeen = f.clock.Now()
		f.mu.Unlock()

	case domain.SensorMessageHeartbeat:
		f.mu.Lock()
		f.lastSeen = f.clock.Now()
		f.mu.Unlock()

	default:
		f.logger.Warn().Str("message_type", generic.MessageType).Str("device_id", generic.DeviceID).
			Msg("unhandled sensor message type")
	}
	return nil
}

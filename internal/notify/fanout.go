package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"parkaro/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Fanout stamps each notification with an event id and hands it to every
// sink in order.
type Fanout struct {
	clock clockwork.Clock
	sinks []Notifier
}

func NewFanout(clock clockwork.Clock, sinks ...Notifier) *Fanout {
	return &Fanout{clock: clock, sinks: sinks}
}

func (f *Fanout) Notify(ctx context.Context, n domain.Notification) {
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = f.clock.Now().UTC()
	}
	for _, sink := range f.sinks {
		sink.Notify(ctx, n)
	}
}

// OccupancyChanged is registered with the reconciler and turns every new
// snapshot into an occupancy notification.
func (f *Fanout) OccupancyChanged(snap domain.OccupancySnapshot) {
	view := domain.NewParkingStatusView(&snap)
	f.Notify(context.Background(), domain.Notification{
		Type:      domain.NotificationOccupancy,
		Timestamp: snap.Timestamp,
		Data:      view,
	})
}

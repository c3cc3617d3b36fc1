package domain

import "time"

type NotificationType string

const (
	NotificationOccupancy        NotificationType = "occupancy"
	NotificationSlotAssigned     NotificationType = "slot_assigned"
	NotificationCheckedOut       NotificationType = "checked_out"
	NotificationChargingComplete NotificationType = "charging_complete"
)

// Notification is pushed to websocket clients and station displays.
type Notification struct {
	EventID   string           `json:"event_id"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Slot      int              `json:"slot,omitempty"`
	SessionID int              `json:"session_id,omitempty"`
	UserID    int              `json:"user_id,omitempty"`
	Message   string           `json:"message,omitempty"`
	Data      any              `json:"data,omitempty"`
}

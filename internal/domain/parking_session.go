package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ParkingSessionStatus string

const (
	SessionActive    ParkingSessionStatus = "active"
	SessionCompleted ParkingSessionStatus = "completed"
)

// ParkingSession is one row of the reservation ledger. It moves from active
// to completed exactly once, at check-out.
type ParkingSession struct {
	ID              int                  `json:"id"`
	UserID          int                  `json:"user_id"`
	QRCode          string               `json:"qr_code"`
	Slot            int                  `json:"slot"`
	CheckInTime     time.Time            `json:"check_in_time"`
	CheckOutTime    null.Time            `json:"check_out_time"`
	Status          ParkingSessionStatus `json:"status"`
	DurationMinutes int                  `json:"duration_minutes"`
	TotalAmount     float64              `json:"total_amount"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func (s *ParkingSession) IsActive() bool {
	return s.Status == SessionActive
}

type ParkingSessionFilterDTO struct {
	UserID *int    `form:"userId"`
	Status *string `form:"status" binding:"omitempty,oneof=active completed"`
}

// ScanRequest is what the scanning station posts: one QR code that is either
// a check-in or a check-out depending on the holder's ledger state.
type ScanRequest struct {
	QRCode string `json:"qr_code" binding:"required,min=1,max=128"`
}

type CheckInRequest struct {
	QRCode           string `json:"qr_code" binding:"required,min=1,max=128"`
	StartChargeLevel *int   `json:"start_charge_level,omitempty" binding:"omitempty,min=0,max=100"`
}

type CheckOutRequest struct {
	QRCode string `json:"qr_code" binding:"required,min=1,max=128"`
}

type CheckInResult struct {
	UserID            int       `json:"user_id"`
	Username          string    `json:"username"`
	VehicleType       string    `json:"vehicle_type"`
	AssignedSlot      int       `json:"assigned_slot"`
	ParkingSessionID  int       `json:"session_id"`
	ChargingSessionID int       `json:"charging_session_id"`
	StartChargeLevel  int       `json:"start_charge_level"`
	CheckInTime       time.Time `json:"check_in_time"`
	FreeSpaces        int       `json:"free_spaces"`
	TotalSpaces       int       `json:"total_spaces"`
	Message           string    `json:"message"`
}

type CheckOutResult struct {
	UserID           int            `json:"user_id"`
	Username         string         `json:"username"`
	ParkingSessionID int            `json:"session_id"`
	Slot             int            `json:"slot"`
	CheckInTime      time.Time      `json:"check_in_time"`
	CheckOutTime     time.Time      `json:"check_out_time"`
	DurationMinutes  int            `json:"duration_minutes"`
	DurationDisplay  string         `json:"duration_display"`
	Amount           float64        `json:"total_amount"`
	RateDescription  string         `json:"rate_used"`
	BatteryFullDwell *time.Duration `json:"-"`
	BatteryFullLabel string         `json:"battery_full_duration,omitempty"`
	Message          string         `json:"message"`
}

type ScanType string

const (
	ScanCheckIn  ScanType = "check_in"
	ScanCheckOut ScanType = "check_out"
)

type ScanResult struct {
	Type     ScanType        `json:"session_type"`
	CheckIn  *CheckInResult  `json:"check_in,omitempty"`
	CheckOut *CheckOutResult `json:"check_out,omitempty"`
}

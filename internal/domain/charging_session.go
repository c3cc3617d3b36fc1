package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ChargingStatus string

const (
	ChargingActive   ChargingStatus = "active"
	ChargingComplete ChargingStatus = "complete"
	ChargingStopped  ChargingStatus = "stopped"
)

const FullChargeLevel = 100

// ChargingSession is owned by exactly one parking session and never outlives it.
type ChargingSession struct {
	ID                 int            `json:"id"`
	UserID             int            `json:"user_id"`
	ParkingSessionID   int            `json:"parking_session_id"`
	StartChargeLevel   int            `json:"start_charge_level"`
	CurrentChargeLevel int            `json:"current_charge_level"`
	EndChargeLevel     null.Int       `json:"end_charge_level"`
	Status             ChargingStatus `json:"status"`
	CompletionTime     null.Time      `json:"completion_time"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            null.Time      `json:"end_time"`
	ChargingRateKW     float64        `json:"charging_rate_kw"`
	TotalEnergyKWh     float64        `json:"total_energy_kwh"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Live reports whether the session still accepts level updates.
func (c *ChargingSession) Live() bool {
	return c.Status == ChargingActive || c.Status == ChargingComplete
}

type ChargeOutcome string

const (
	OutcomeCharging          ChargeOutcome = "charging"
	OutcomeFirstTimeComplete ChargeOutcome = "first_time_complete"
	OutcomeAlreadyComplete   ChargeOutcome = "complete"
)

type UpdateChargeRequest struct {
	SessionID   int  `json:"session_id" binding:"required,gt=0"`
	ChargeLevel *int `json:"charge_level" binding:"required"`
}

// StopChargingRequest comes from a station. The QR code must belong to the
// session's owner.
type StopChargingRequest struct {
	SessionID int    `json:"session_id" binding:"required,gt=0"`
	QRCode    string `json:"qr_code" binding:"required,min=1,max=128"`
}

type StartChargingRequest struct {
	StartChargeLevel *int `json:"start_charge_level,omitempty" binding:"omitempty,min=0,max=100"`
}

type ChargeUpdateResult struct {
	SessionID      int           `json:"session_id"`
	ChargeLevel    int           `json:"charge_level"`
	Outcome        ChargeOutcome `json:"status"`
	CompletionTime null.Time     `json:"completion_time"`
	Message        string        `json:"message"`
}

// ChargingStatusView is what a driver's dashboard polls.
type ChargingStatusView struct {
	SessionID        int            `json:"session_id"`
	ParkingSessionID int            `json:"parking_session_id"`
	StartChargeLevel int            `json:"start_charge_level"`
	CurrentLevel     int            `json:"current_charge_level"`
	Status           ChargingStatus `json:"status"`
	StartTime        time.Time      `json:"start_time"`
	CompletionTime   null.Time      `json:"completion_time"`
	FullForSeconds   int64          `json:"full_for_seconds,omitempty"`
}

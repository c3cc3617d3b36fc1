package domain

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentWaived  PaymentStatus = "waived"
)

// Payment is recorded against a completed parking session. Nothing here
// talks to a payment gateway.
type Payment struct {
	ID          int           `json:"id"`
	UserID      int           `json:"user_id"`
	SessionID   int           `json:"session_id"`
	Amount      float64       `json:"amount"`
	Status      PaymentStatus `json:"payment_status"`
	PaymentTime time.Time     `json:"payment_time"`
}

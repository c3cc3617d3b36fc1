package domain

import "time"

const (
	RoleDriver   = "driver"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

type User struct {
	ID            int       `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Password      string    `json:"-"` // bcrypt hash, never serialized
	QRCode        string    `json:"qr_code"`
	Role          string    `json:"role"`
	VehicleType   string    `json:"vehicle_type"`
	VehicleNumber string    `json:"vehicle_number,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type RegisterUserDTO struct {
	Username      string `json:"username" binding:"required,min=3,max=50"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=6,max=100"`
	VehicleType   string `json:"vehicle_type,omitempty" binding:"omitempty,oneof=ev hybrid ice"`
	VehicleNumber string `json:"vehicle_number,omitempty" binding:"omitempty,max=20"`
	Phone         string `json:"phone,omitempty" binding:"omitempty,max=20"`
	Role          string `json:"-"`
}

type LoginUserDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	QRCode   string `json:"qr_code"`
}

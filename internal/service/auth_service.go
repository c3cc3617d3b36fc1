package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"parkaro/internal/apperr"
	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

const qrPrefix = "PARKARO_"

var ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid username or password")
var ErrTokenInvalid = apperr.New(apperr.KindUnauthorized, "token is invalid or expired")

// Claims is what the auth middleware needs from a validated token.
type Claims struct {
	UserID   int
	Username string
	Role     string
}

type AuthService struct {
	userRepo      repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
	clock         clockwork.Clock
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpiration time.Duration, clock clockwork.Clock) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		clock:         clock,
	}
}

// Register creates a user and issues the QR code they scan at the gate.
func (s *AuthService) Register(ctx context.Context, dto domain.RegisterUserDTO) (*domain.User, error) {
	existingUser, err := s.userRepo.FindByUsername(ctx, dto.Username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Storage("UserRepository.FindByUsername", err)
	}
	if existingUser != nil {
		return nil, apperr.Newf(apperr.KindConflict, "username %q is already taken", dto.Username)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	qrCode, err := newQRCode()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "generate qr code", err)
	}

	role := dto.Role
	if role == "" {
		role = domain.RoleDriver
	}
	vehicleType := dto.VehicleType
	if vehicleType == "" {
		vehicleType = "ev"
	}

	createdUser, err := s.userRepo.Create(ctx, &domain.User{
		Username:      dto.Username,
		Email:         dto.Email,
		Password:      string(hashedPassword),
		QRCode:        qrCode,
		Role:          role,
		VehicleType:   vehicleType,
		VehicleNumber: dto.VehicleNumber,
		Phone:         dto.Phone,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, apperr.Wrap(apperr.KindConflict, "username or email is already registered", err)
		}
		return nil, apperr.Storage("UserRepository.Create", err)
	}
	createdUser.Password = ""
	return createdUser, nil
}

func (s *AuthService) Login(ctx context.Context, dto domain.LoginUserDTO) (*domain.AuthResponseDTO, error) {
	user, err := s.userRepo.FindByUsername(ctx, dto.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Storage("UserRepository.FindByUsername", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	customClaims := jwt.MapClaims{
		"sub":      strconv.Itoa(user.ID),
		"exp":      now.Add(s.jwtExpiration).Unix(),
		"iat":      now.Unix(),
		"role":     user.Role,
		"username": user.Username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, customClaims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "sign token", err)
	}

	return &domain.AuthResponseDTO{
		Token:    tokenString,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		QRCode:   user.QRCode,
	}, nil
}

// ValidateToken is used by the auth middleware.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, apperr.Wrap(apperr.KindUnauthorized, "token is malformed", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperr.Wrap(apperr.KindUnauthorized, "token has expired", err)
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, apperr.Wrap(apperr.KindUnauthorized, "token is not valid yet", err)
		}
		return nil, apperr.Wrap(apperr.KindUnauthorized, "token is invalid or expired", err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	userID, err := strconv.Atoi(sub)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	role, _ := claims["role"].(string)
	username, _ := claims["username"].(string)
	return &Claims{UserID: userID, Username: username, Role: role}, nil
}

// LookupQR resolves a QR code to its owner, for station displays.
func (s *AuthService) LookupQR(ctx context.Context, qrCode string) (*domain.User, error) {
	user, err := s.userRepo.FindByQRCode(ctx, qrCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "unknown QR code")
		}
		return nil, apperr.Storage("UserRepository.FindByQRCode", err)
	}
	user.Password = ""
	return user, nil
}

// newQRCode returns PARKARO_ followed by 16 random hex digits.
func newQRCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return qrPrefix + hex.EncodeToString(b), nil
}

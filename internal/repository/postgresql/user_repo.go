package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkaro/internal/domain"
	"parkaro/internal/repository"
)

type pgUserRepository struct {
	db queryer
}

const userColumns = `id, username, email, password_hash, qr_code, role, vehicle_type, vehicle_number, phone, created_at, updated_at`

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `INSERT INTO users (username, email, password_hash, qr_code, role, vehicle_type, vehicle_number, phone, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`
	// user.Password is already the bcrypt hash
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.Password, user.QRCode, user.Role,
		user.VehicleType, user.VehicleNumber, user.Phone,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: user violates %s", repository.ErrDuplicateEntry, constraint)
		}
		return nil, fmt.Errorf("UserRepository.Create: %w", err)
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "FindByUsername", `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	return r.findOne(ctx, "FindByID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *pgUserRepository) FindByQRCode(ctx context.Context, qrCode string) (*domain.User, error) {
	return r.findOne(ctx, "FindByQRCode", `SELECT `+userColumns+` FROM users WHERE qr_code = $1`, qrCode)
}

func (r *pgUserRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.Password, &user.QRCode, &user.Role,
		&user.VehicleType, &user.VehicleNumber, &user.Phone, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.%s: %w", op, err)
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}

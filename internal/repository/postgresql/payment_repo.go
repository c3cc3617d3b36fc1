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

type pgPaymentRepository struct {
	db queryer
}

func (r *pgPaymentRepository) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	query := `INSERT INTO payments (user_id, session_id, amount, payment_status, payment_time)
	           VALUES ($1, $2, $3, $4, $5)
	           RETURNING id`
	err := r.db.QueryRowContext(ctx, query, p.UserID, p.SessionID, p.Amount, p.Status, p.PaymentTime).Scan(&p.ID)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: payment for session %d", repository.ErrDuplicateEntry, p.SessionID)
		}
		return nil, fmt.Errorf("PaymentRepository.Create: %w", err)
	}
	return p, nil
}

func (r *pgPaymentRepository) FindBySessionID(ctx context.Context, sessionID int) (*domain.Payment, error) {
	p := &domain.Payment{}
	query := `SELECT id, user_id, session_id, amount, payment_status, payment_time FROM payments WHERE session_id = $1`
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&p.ID, &p.UserID, &p.SessionID, &p.Amount, &p.Status, &p.PaymentTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PaymentRepository.FindBySessionID: %w", err)
	}
	p.PaymentTime = p.PaymentTime.In(time.UTC)
	return p, nil
}

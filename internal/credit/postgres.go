package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"brandkit/internal/domain"
	"brandkit/internal/sqlinline"
)

// PostgresGate enforces the balance on the users row. The deduction is a
// single conditional UPDATE, so concurrent reservations serialize on the
// row and can never overdraw.
type PostgresGate struct {
	pool *pgxpool.Pool
}

// NewPostgresGate creates a gate backed by the shared connection pool.
func NewPostgresGate(pool *pgxpool.Pool) *PostgresGate {
	return &PostgresGate{pool: pool}
}

func (g *PostgresGate) CheckAndReserve(ctx context.Context, userID string, cost int) error {
	if cost <= 0 {
		return fmt.Errorf("credit cost must be positive, got %d", cost)
	}
	var remaining int
	err := g.pool.QueryRow(ctx, sqlinline.QReserveCredits, userID, cost).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row updated: the balance was short (or the user is unknown,
		// which the API layer has already ruled out).
		return fmt.Errorf("user %s: %w", userID, domain.ErrCreditExhausted)
	}
	if err != nil {
		return fmt.Errorf("reserve credits for %s: %w", userID, err)
	}
	return nil
}

func (g *PostgresGate) Refund(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	if _, err := g.pool.Exec(ctx, sqlinline.QRefundCredits, userID, amount); err != nil {
		return fmt.Errorf("refund credits for %s: %w", userID, err)
	}
	return nil
}

func (g *PostgresGate) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := g.pool.QueryRow(ctx, sqlinline.QSelectCredits, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load credits for %s: %w", userID, err)
	}
	return balance, nil
}

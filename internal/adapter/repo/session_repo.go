package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"brandkit/internal/domain"
	"brandkit/internal/sqlinline"
)

// SessionRepositoryPG implements abandon.SessionStore on PostgreSQL.
type SessionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a session repository backed by PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepositoryPG {
	return &SessionRepositoryPG{pool: pool}
}

// FindStalled returns sessions idle since before cutoff that are neither
// finished nor already marked abandoned.
func (r *SessionRepositoryPG) FindStalled(ctx context.Context, cutoff time.Time) ([]domain.WizardSession, error) {
	rows, err := r.pool.Query(ctx, sqlinline.QFindStalledSessions, cutoff, domain.TerminalStep())
	if err != nil {
		return nil, fmt.Errorf("query stalled sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.WizardSession
	for rows.Next() {
		var s domain.WizardSession
		if err := rows.Scan(&s.BrandID, &s.UserID, &s.Email, &s.Locale, &s.CurrentStep, &s.LastActivity); err != nil {
			return nil, fmt.Errorf("scan stalled session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// MarkAbandoned flips the session marker.
func (r *SessionRepositoryPG) MarkAbandoned(ctx context.Context, brandID string) error {
	if _, err := r.pool.Exec(ctx, sqlinline.QMarkSessionAbandoned, brandID); err != nil {
		return fmt.Errorf("mark session %s abandoned: %w", brandID, err)
	}
	return nil
}

// Touch upserts wizard activity for a brand, clearing the abandoned flag.
func (r *SessionRepositoryPG) Touch(ctx context.Context, brandID, userID, step string) error {
	if _, err := r.pool.Exec(ctx, sqlinline.QTouchSession, brandID, userID, step); err != nil {
		return fmt.Errorf("touch session %s: %w", brandID, err)
	}
	return nil
}

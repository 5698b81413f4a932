package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"restaurant-storefront/internal/database"
	"restaurant-storefront/internal/models"
)

// PostgresStore persists carts so they survive instance restarts. Lines are
// stored as a JSONB snapshot per session; the carts table is created by the
// migrations under migrations/.
type PostgresStore struct {
	db  *database.DB
	ttl time.Duration
}

func NewPostgresStore(db *database.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (models.Cart, error) {
	empty := models.Cart{SessionID: sessionID}

	var (
		linesJSON []byte
		updatedAt time.Time
	)
	err := s.db.QueryRow(ctx,
		"SELECT lines, updated_at FROM carts WHERE session_id = $1",
		sessionID,
	).Scan(&linesJSON, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("failed to load cart: %w", err)
	}

	if s.ttl > 0 && time.Since(updatedAt) > s.ttl {
		return empty, nil
	}

	var lines []models.CartLine
	if err := json.Unmarshal(linesJSON, &lines); err != nil {
		return empty, fmt.Errorf("failed to decode cart lines: %w", err)
	}

	return models.Cart{SessionID: sessionID, Lines: lines, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Put(ctx context.Context, cart models.Cart) error {
	linesJSON, err := json.Marshal(cart.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart lines: %w", err)
	}

	err = s.db.Exec(ctx, `
		INSERT INTO carts (session_id, lines, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET lines = EXCLUDED.lines, updated_at = NOW()`,
		cart.SessionID, linesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.db.Exec(ctx, "DELETE FROM carts WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// DeleteExpired removes carts idle longer than the TTL. Run periodically so
// abandoned sessions do not accumulate.
func (s *PostgresStore) DeleteExpired(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	err := s.db.Exec(ctx,
		"DELETE FROM carts WHERE updated_at < NOW() - $1::interval",
		fmt.Sprintf("%d seconds", int(s.ttl.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to delete expired carts: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"santrack/dashboard/internal/models"
	"santrack/dashboard/internal/session"
)

// SessionRepository persists client sessions in postgres. Token and user
// share one row, so the pair is written and removed atomically.
type SessionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool, now: time.Now}
}

func (r *SessionRepository) Load(ctx context.Context, clientID string) (models.Session, error) {
	const query = `
		SELECT token, user_data
		FROM dashboard_sessions
		WHERE client_id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	var (
		token    string
		userData []byte
	)
	if err := r.pool.QueryRow(ctx, query, clientID, r.now()).Scan(&token, &userData); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, session.ErrNotFound
		}
		return models.Session{}, err
	}
	return session.DecodePair(token, token != "", userData, len(userData) > 0)
}

func (r *SessionRepository) Save(ctx context.Context, clientID string, sess models.Session, ttl time.Duration) error {
	const query = `
		INSERT INTO dashboard_sessions (client_id, token, user_data, updated_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (client_id)
		DO UPDATE SET
			token = EXCLUDED.token,
			user_data = EXCLUDED.user_data,
			updated_at = NOW(),
			expires_at = EXCLUDED.expires_at
	`

	userData, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := r.now().Add(ttl)
		expiresAt = &t
	}

	_, err = r.pool.Exec(ctx, query, clientID, sess.Token, userData, expiresAt)
	return err
}

func (r *SessionRepository) Delete(ctx context.Context, clientID string) error {
	const query = `DELETE FROM dashboard_sessions WHERE client_id = $1`
	_, err := r.pool.Exec(ctx, query, clientID)
	return err
}

// Purge removes rows whose expiry has passed.
func (r *SessionRepository) Purge(ctx context.Context) (int64, error) {
	const query = `DELETE FROM dashboard_sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`
	cmd, err := r.pool.Exec(ctx, query, r.now())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"santrack/dashboard/internal/models"
	"santrack/dashboard/internal/session"
)

// SessionCache persists client sessions in redis under the two-key layout
// santrack_token:<client> / santrack_user:<client>. Expiry is native, so
// there is nothing to purge.
type SessionCache struct {
	client redis.UniversalClient
}

func NewSessionCache(client redis.UniversalClient) *SessionCache {
	return &SessionCache{client: client}
}

func (c *SessionCache) Load(ctx context.Context, clientID string) (models.Session, error) {
	values, err := c.client.MGet(ctx, session.TokenKeyFor(clientID), session.UserKeyFor(clientID)).Result()
	if err != nil {
		return models.Session{}, fmt.Errorf("redis mget: %w", err)
	}

	token, tokenOK := values[0].(string)
	user, userOK := values[1].(string)
	return session.DecodePair(token, tokenOK, []byte(user), userOK)
}

// Save writes both keys in one MULTI/EXEC so readers never see half a pair.
func (c *SessionCache) Save(ctx context.Context, clientID string, sess models.Session, ttl time.Duration) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, session.TokenKeyFor(clientID), sess.Token, ttl)
		pipe.Set(ctx, session.UserKeyFor(clientID), userJSON, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (c *SessionCache) Delete(ctx context.Context, clientID string) error {
	if err := c.client.Del(ctx, session.TokenKeyFor(clientID), session.UserKeyFor(clientID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

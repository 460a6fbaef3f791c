package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"santrack/dashboard/internal/models"
	"santrack/dashboard/internal/security"
)

// Persisted layout: one key per half of the session, suffixed with the
// client id. The token is stored as a raw string, the user as JSON.
const (
	TokenKey = "santrack_token"
	UserKey  = "santrack_user"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt means only one half of the token/user pair was found, or
	// the user record could not be decoded.
	ErrCorrupt = errors.New("persisted session corrupt")
)

func TokenKeyFor(clientID string) string { return TokenKey + ":" + clientID }

func UserKeyFor(clientID string) string { return UserKey + ":" + clientID }

// Storage persists sessions across gateway restarts. Save and Delete must
// write or remove both halves of the pair together.
type Storage interface {
	Load(ctx context.Context, clientID string) (models.Session, error)
	Save(ctx context.Context, clientID string, sess models.Session, ttl time.Duration) error
	Delete(ctx context.Context, clientID string) error
}

// Purger is implemented by backends that cannot expire keys on their own.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// DecodePair rebuilds a session from its persisted halves. ok reports
// whether each half was present.
func DecodePair(token string, tokenOK bool, userJSON []byte, userOK bool) (models.Session, error) {
	switch {
	case !tokenOK && !userOK:
		return models.Session{}, ErrNotFound
	case tokenOK != userOK:
		return models.Session{}, ErrCorrupt
	}

	var user models.User
	if err := json.Unmarshal(userJSON, &user); err != nil {
		return models.Session{}, fmt.Errorf("%w: decode user: %v", ErrCorrupt, err)
	}
	sess := models.Session{Token: token, User: user}
	if !sess.Valid() {
		return models.Session{}, ErrCorrupt
	}
	return sess, nil
}

type memoryItem struct {
	value   string
	expires time.Time
}

// MemoryStorage keeps the persisted layout in process memory. It backs the
// "memory" session backend and tests.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *MemoryStorage) Load(_ context.Context, clientID string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, tokenOK := m.getLocked(TokenKeyFor(clientID))
	user, userOK := m.getLocked(UserKeyFor(clientID))
	return DecodePair(token, tokenOK, []byte(user), userOK)
}

func (m *MemoryStorage) Save(_ context.Context, clientID string, sess models.Session, ttl time.Duration) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[TokenKeyFor(clientID)] = memoryItem{value: sess.Token, expires: expires}
	m.items[UserKeyFor(clientID)] = memoryItem{value: string(userJSON), expires: expires}
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, TokenKeyFor(clientID))
	delete(m.items, UserKeyFor(clientID))
	return nil
}

func (m *MemoryStorage) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed int64
	for key, item := range m.items {
		if !item.expires.IsZero() && !now.Before(item.expires) {
			delete(m.items, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStorage) Ping(context.Context) error { return nil }

func (m *MemoryStorage) getLocked(key string) (string, bool) {
	item, ok := m.items[key]
	if !ok {
		return "", false
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		return "", false
	}
	return item.value, true
}

// SealedStorage encrypts tokens before handing them to the wrapped backend.
type SealedStorage struct {
	next   Storage
	sealer *security.Sealer
}

func NewSealedStorage(next Storage, sealer *security.Sealer) *SealedStorage {
	return &SealedStorage{next: next, sealer: sealer}
}

func (s *SealedStorage) Load(ctx context.Context, clientID string) (models.Session, error) {
	sess, err := s.next.Load(ctx, clientID)
	if err != nil {
		return models.Session{}, err
	}
	token, err := s.sealer.Open(sess.Token)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.Token = token
	return sess, nil
}

func (s *SealedStorage) Save(ctx context.Context, clientID string, sess models.Session, ttl time.Duration) error {
	sealed, err := s.sealer.Seal(sess.Token)
	if err != nil {
		return err
	}
	sess.Token = sealed
	return s.next.Save(ctx, clientID, sess, ttl)
}

func (s *SealedStorage) Delete(ctx context.Context, clientID string) error {
	return s.next.Delete(ctx, clientID)
}

func (s *SealedStorage) Purge(ctx context.Context) (int64, error) {
	if p, ok := s.next.(Purger); ok {
		return p.Purge(ctx)
	}
	return 0, nil
}

func (s *SealedStorage) Ping(ctx context.Context) error {
	if p, ok := s.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

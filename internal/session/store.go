package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"santrack/dashboard/internal/apiclient"
	"santrack/dashboard/internal/models"
	"santrack/dashboard/internal/security"
)

// ErrNoSession is returned by operations that need an authenticated client.
var ErrNoSession = errors.New("no active session")

type Notice string

const (
	NoticeNone               Notice = ""
	NoticeSessionExpired     Notice = "session_expired"
	NoticeVerificationFailed Notice = "verification_failed"
)

// IdentityClient is the external identity service.
type IdentityClient interface {
	Login(ctx context.Context, creds models.Credentials) (models.Session, error)
	Register(ctx context.Context, reg models.Registration) (models.Session, error)
	Me(ctx context.Context) (models.User, error)
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// State is a read-only snapshot of one client's session.
type State struct {
	Session *models.Session
	Pending bool
}

func (s State) Authenticated() bool {
	return s.Session != nil
}

func (s State) User() (models.User, bool) {
	if s.Session == nil {
		return models.User{}, false
	}
	return s.Session.User, true
}

type entry struct {
	// writeMu serializes persist-then-apply sequences for this client so
	// storage and memory always reflect the same writer.
	writeMu sync.Mutex

	// Guarded by Store.mu.
	session   *models.Session
	pending   bool
	hydrated  bool
	verifying bool
	notice    Notice
	lastSeen  time.Time
	gen       uint64
}

type Option func(*Store)

// WithTTL bounds how long sessions with opaque tokens stay persisted.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithVerifyTimeout(timeout time.Duration) Option {
	return func(s *Store) { s.verifyTimeout = timeout }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the single writer of client sessions. Every mutation persists to
// Storage before the in-memory copy changes.
type Store struct {
	identity IdentityClient
	storage  Storage
	log      zerolog.Logger

	ttl           time.Duration
	verifyTimeout time.Duration
	now           func() time.Time

	mu      sync.Mutex
	clients map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStore(identity IdentityClient, storage Storage, log zerolog.Logger, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		identity:      identity,
		storage:       storage,
		log:           log,
		ttl:           7 * 24 * time.Hour,
		verifyTimeout: 15 * time.Second,
		now:           time.Now,
		clients:       make(map[string]*entry),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops in-flight verifications and waits for them to return.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Store) Storage() Storage {
	return s.storage
}

func (s *Store) Login(ctx context.Context, clientID string, creds models.Credentials) (models.User, error) {
	sess, err := s.identity.Login(ctx, creds)
	if err != nil {
		return models.User{}, err
	}
	if err := s.establish(ctx, clientID, sess); err != nil {
		return models.User{}, err
	}
	s.log.Info().Str("client_id", clientID).Str("user_id", sess.User.ID).Str("role", string(sess.User.Role)).Msg("session established")
	return sess.User, nil
}

// Register creates the account and signs the client in with it.
func (s *Store) Register(ctx context.Context, clientID string, reg models.Registration) (models.User, error) {
	sess, err := s.identity.Register(ctx, reg)
	if err != nil {
		return models.User{}, err
	}
	if err := s.establish(ctx, clientID, sess); err != nil {
		return models.User{}, err
	}
	s.log.Info().Str("client_id", clientID).Str("user_id", sess.User.ID).Msg("account registered")
	return sess.User, nil
}

func (s *Store) establish(ctx context.Context, clientID string, sess models.Session) error {
	if !sess.Valid() {
		return &apiclient.APIError{Kind: apiclient.ErrServer, Message: "identity service returned an incomplete session"}
	}

	now := s.now()
	if security.TokenExpired(sess.Token, now) {
		return &apiclient.APIError{Kind: apiclient.ErrServer, Message: "identity service returned an expired token"}
	}

	e := s.entry(clientID)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := s.storage.Save(ctx, clientID, sess, security.StorageTTL(sess.Token, s.ttl, now)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	stored := sess
	e.session = &stored
	e.pending = false
	e.hydrated = true
	e.notice = NoticeNone
	e.gen++
	s.mu.Unlock()
	return nil
}

// Logout clears the client's session. It never fails and is a no-op when
// nothing is stored.
func (s *Store) Logout(ctx context.Context, clientID string) {
	s.clear(ctx, clientID, NoticeNone)
}

func (s *Store) clear(ctx context.Context, clientID string, notice Notice) {
	e := s.entry(clientID)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	s.clearLocked(ctx, clientID, e, notice)
}

// clearLocked requires e.writeMu.
func (s *Store) clearLocked(ctx context.Context, clientID string, e *entry, notice Notice) {
	if err := s.storage.Delete(ctx, clientID); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("delete persisted session failed")
	}

	s.mu.Lock()
	e.session = nil
	e.pending = false
	e.hydrated = true
	e.notice = notice
	e.gen++
	s.mu.Unlock()
}

// Ensure hydrates clientID the first time this process sees it. A client
// whose hydration is already running is left alone; readers see it as
// pending until the local read completes.
func (s *Store) Ensure(ctx context.Context, clientID string) {
	s.mu.Lock()
	e, ok := s.clients[clientID]
	if !ok {
		e = &entry{}
		s.clients[clientID] = e
	}
	e.lastSeen = s.now()
	if e.hydrated || e.pending {
		s.mu.Unlock()
		return
	}
	e.pending = true
	s.mu.Unlock()

	s.hydrate(ctx, clientID, e)
}

// Hydrate reloads clientID from storage. The persisted session becomes
// visible immediately; the returned channel closes once the identity service
// has confirmed or rejected its token.
func (s *Store) Hydrate(ctx context.Context, clientID string) <-chan struct{} {
	e := s.entry(clientID)
	s.mu.Lock()
	e.pending = true
	s.mu.Unlock()
	return s.hydrate(ctx, clientID, e)
}

func (s *Store) hydrate(ctx context.Context, clientID string, e *entry) <-chan struct{} {
	done := make(chan struct{})

	e.writeMu.Lock()
	sess, err := s.storage.Load(ctx, clientID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.finishHydrate(e, nil)
	case errors.Is(err, ErrCorrupt):
		s.log.Warn().Err(err).Str("client_id", clientID).Msg("discarding corrupt persisted session")
		s.clearLocked(ctx, clientID, e, NoticeNone)
	case err != nil:
		// Storage is unreachable: keep whatever is in memory. A client seen
		// for the first time stays anonymous and is retried on its next
		// request.
		s.log.Error().Err(err).Str("client_id", clientID).Msg("load persisted session failed")
		s.mu.Lock()
		e.pending = false
		s.mu.Unlock()
	case security.TokenExpired(sess.Token, s.now()):
		s.log.Info().Str("client_id", clientID).Msg("persisted token expired")
		s.clearLocked(ctx, clientID, e, NoticeSessionExpired)
	default:
		s.mu.Lock()
		e.verifying = true
		s.mu.Unlock()
		gen := s.finishHydrate(e, &sess)
		e.writeMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer close(done)
			s.verify(clientID, e, sess.Token, gen)
			s.mu.Lock()
			e.verifying = false
			s.mu.Unlock()
		}()
		return done
	}
	e.writeMu.Unlock()

	close(done)
	return done
}

func (s *Store) finishHydrate(e *entry, sess *models.Session) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.session = sess
	e.pending = false
	e.hydrated = true
	return e.gen
}

// verify confirms token against the identity service. Any failure clears
// the session, unless another writer replaced it in the meantime.
func (s *Store) verify(clientID string, e *entry, token string, gen uint64) {
	ctx, cancel := context.WithTimeout(s.ctx, s.verifyTimeout)
	defer cancel()

	user, err := s.identity.Me(apiclient.WithToken(ctx, token))
	if err != nil && s.ctx.Err() != nil {
		// Shutting down; the persisted session is verified on next start.
		return
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	s.mu.Lock()
	stale := e.gen != gen
	var current models.Session
	if e.session != nil {
		current = *e.session
	}
	s.mu.Unlock()
	if stale {
		return
	}

	if err != nil {
		notice := NoticeVerificationFailed
		if apiclient.IsAuthFailure(err) {
			notice = NoticeSessionExpired
		}
		s.log.Info().Err(err).Str("client_id", clientID).Msg("session verification failed")
		s.clearLocked(context.Background(), clientID, e, notice)
		return
	}

	refreshed := models.Session{Token: current.Token, User: current.User.Merge(user)}
	if err := s.persistLocked(context.Background(), clientID, e, refreshed); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("persist verified session failed")
	}
}

// persistLocked requires e.writeMu. A token that has expired by now is
// never written back: the session is cleared instead.
func (s *Store) persistLocked(ctx context.Context, clientID string, e *entry, sess models.Session) error {
	now := s.now()
	if security.TokenExpired(sess.Token, now) {
		s.clearLocked(ctx, clientID, e, NoticeSessionExpired)
		return &apiclient.APIError{Kind: apiclient.ErrSessionExpired, Message: "token expired"}
	}
	if err := s.storage.Save(ctx, clientID, sess, security.StorageTTL(sess.Token, s.ttl, now)); err != nil {
		return err
	}
	s.mu.Lock()
	stored := sess
	e.session = &stored
	e.gen++
	s.mu.Unlock()
	return nil
}

// UpdateProfile sends update to the identity service and merges the result
// into the cached user. The token is left as is.
func (s *Store) UpdateProfile(ctx context.Context, clientID string, update models.ProfileUpdate) (models.User, error) {
	token, ok := s.Token(clientID)
	if !ok {
		return models.User{}, ErrNoSession
	}

	user, err := s.identity.UpdateProfile(apiclient.WithToken(ctx, token), update)
	if err != nil {
		return models.User{}, s.HandleAuthFailure(ctx, clientID, err)
	}

	e := s.entry(clientID)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	s.mu.Lock()
	var current models.Session
	live := e.session != nil && e.session.Token == token
	if live {
		current = *e.session
	}
	s.mu.Unlock()
	if !live {
		// The session changed while the request was in flight.
		return models.User{}, ErrNoSession
	}

	updated := models.Session{Token: token, User: current.User.Merge(user)}
	if err := s.persistLocked(ctx, clientID, e, updated); err != nil {
		return models.User{}, fmt.Errorf("persist session: %w", err)
	}
	return updated.User, nil
}

// DeleteAccount removes the signed-in user's account and ends the session.
func (s *Store) DeleteAccount(ctx context.Context, clientID string) error {
	state := s.Current(clientID)
	if state.Session == nil {
		return ErrNoSession
	}

	err := s.identity.DeleteUser(apiclient.WithToken(ctx, state.Session.Token), state.Session.User.ID)
	if err != nil {
		return s.HandleAuthFailure(ctx, clientID, err)
	}

	s.log.Info().Str("client_id", clientID).Str("user_id", state.Session.User.ID).Msg("account deleted")
	s.Logout(ctx, clientID)
	return nil
}

// HandleAuthFailure clears the session when err says the token was
// rejected. err is returned unchanged so callers can keep propagating it.
func (s *Store) HandleAuthFailure(ctx context.Context, clientID string, err error) error {
	if apiclient.IsAuthFailure(err) {
		s.log.Info().Str("client_id", clientID).Msg("token rejected, clearing session")
		s.clear(ctx, clientID, NoticeSessionExpired)
	}
	return err
}

func (s *Store) Current(clientID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.clients[clientID]
	if !ok {
		return State{}
	}
	state := State{Pending: e.pending}
	if e.session != nil {
		cp := *e.session
		state.Session = &cp
	}
	return state
}

func (s *Store) Token(clientID string) (string, bool) {
	state := s.Current(clientID)
	if state.Session == nil {
		return "", false
	}
	return state.Session.Token, true
}

// AuthContext returns ctx carrying the client's bearer token.
func (s *Store) AuthContext(ctx context.Context, clientID string) (context.Context, bool) {
	token, ok := s.Token(clientID)
	if !ok {
		return ctx, false
	}
	return apiclient.WithToken(ctx, token), true
}

// TakeNotice returns and clears the one-time notice left for clientID.
func (s *Store) TakeNotice(clientID string) Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.clients[clientID]
	if !ok {
		return NoticeNone
	}
	notice := e.notice
	e.notice = NoticeNone
	return notice
}

// EvictIdle forgets in-memory state of clients not seen for maxIdle.
// Persisted sessions stay; such clients are hydrated again on return.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.clients {
		// Entries still being verified or holding an unread notice stay.
		if e.pending || e.verifying || e.notice != NoticeNone || e.lastSeen.After(cutoff) {
			continue
		}
		delete(s.clients, id)
		evicted++
	}
	return evicted
}

// Purge drops expired persisted sessions on backends without native expiry.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	p, ok := s.storage.(Purger)
	if !ok {
		return 0, nil
	}
	return p.Purge(ctx)
}

func (s *Store) entry(clientID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.clients[clientID]
	if !ok {
		e = &entry{}
		s.clients[clientID] = e
	}
	e.lastSeen = s.now()
	return e
}

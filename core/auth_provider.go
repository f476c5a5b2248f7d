package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxMintAttempts bounds retries when a freshly minted token is already taken.
const maxMintAttempts = 3

// LocalAuthProvider issues and checks sessions against an IdentityDirectory.
// Login, ValidateSession and Logout are serialized on the session table.
type LocalAuthProvider struct {
	mu        sync.Mutex
	directory IdentityDirectory
	table     SessionTable
	codec     TokenCodec
	duration  time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// ProviderOption customizes a LocalAuthProvider.
type ProviderOption func(*LocalAuthProvider)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *LocalAuthProvider) { p.now = now }
}

// WithSessionDuration overrides SessionDuration.
func WithSessionDuration(d time.Duration) ProviderOption {
	return func(p *LocalAuthProvider) { p.duration = d }
}

func WithTokenCodec(c TokenCodec) ProviderOption {
	return func(p *LocalAuthProvider) { p.codec = c }
}

func WithSessionTable(t SessionTable) ProviderOption {
	return func(p *LocalAuthProvider) { p.table = t }
}

func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *LocalAuthProvider) { p.log = l }
}

// NewLocalAuthProvider defaults to an in-memory table, the opaque codec and a 24h session.
func NewLocalAuthProvider(directory IdentityDirectory, opts ...ProviderOption) *LocalAuthProvider {
	p := &LocalAuthProvider{
		directory: directory,
		table:     NewMemorySessionTable(),
		codec:     OpaqueTokenCodec{},
		duration:  SessionDuration,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.duration <= 0 {
		p.duration = SessionDuration
	}
	return p
}

func (p *LocalAuthProvider) Login(ctx context.Context, creds AuthCredentials) LoginResult {
	if creds.Email == "" || creds.Password == "" {
		return loginFailure(msgMissingCredentials, ErrMissingCredentials)
	}

	user, err := p.directory.Authenticate(ctx, creds.Email, creds.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		p.log.Info("login rejected", zap.String("reason", "invalid_credentials"))
		return loginFailure(msgInvalidCredentials, ErrInvalidCredentials)
	}
	if err != nil {
		p.log.Error("identity lookup failed", zap.Error(err))
		return loginFailure(msgStoreUnavailable, storeFailure(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	expiresAt := p.now().Add(p.duration)
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		token, err := p.codec.Mint(user.ID, expiresAt)
		if err != nil {
			p.log.Error("token mint failed", zap.String("user_id", user.ID), zap.Error(err))
			return loginFailure(msgStoreUnavailable, storeFailure(err))
		}
		session := AuthSession{Token: token, User: user, ExpiresAt: expiresAt}
		inserted, err := p.table.Insert(ctx, session)
		if err != nil {
			p.log.Error("session insert failed", zap.String("user_id", user.ID), zap.Error(err))
			return loginFailure(msgStoreUnavailable, storeFailure(err))
		}
		if inserted {
			p.log.Info("login succeeded", zap.String("user_id", user.ID), zap.Time("expires_at", expiresAt))
			return LoginResult{Success: true, Session: &session}
		}
	}
	err = fmt.Errorf("%w: no unique token after %d attempts", ErrStoreUnavailable, maxMintAttempts)
	p.log.Error("session insert failed", zap.String("user_id", user.ID), zap.Error(err))
	return loginFailure(msgStoreUnavailable, err)
}

// ValidateSession rejects tokens the codec cannot parse before touching the
// table. A parsed token must also name the user its session belongs to.
func (p *LocalAuthProvider) ValidateSession(ctx context.Context, token string) ValidationResult {
	claims, err := p.codec.Parse(token)
	if err != nil {
		return invalidSession(msgInvalidToken, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.table.Lookup(ctx, token)
	if err != nil {
		p.log.Error("session lookup failed", zap.Error(err))
		return invalidSession(msgStoreUnavailable, storeFailure(err))
	}
	if session == nil {
		return invalidSession(msgInvalidToken, ErrInvalidToken)
	}
	if claims.UserID != session.User.ID {
		p.log.Warn("token subject does not match session", zap.String("user_id", session.User.ID))
		return invalidSession(msgInvalidToken, ErrInvalidToken)
	}

	if p.now().After(session.ExpiresAt) {
		if _, err := p.table.Remove(ctx, token); err != nil {
			p.log.Error("expired session eviction failed", zap.String("user_id", session.User.ID), zap.Error(err))
			return invalidSession(msgStoreUnavailable, storeFailure(err))
		}
		return invalidSession(msgSessionExpired, ErrSessionExpired)
	}

	user := session.User
	return ValidationResult{IsValid: true, User: &user}
}

func (p *LocalAuthProvider) Logout(ctx context.Context, token string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.table.Remove(ctx, token)
	if err != nil {
		p.log.Error("session remove failed", zap.Error(err))
		return false, storeFailure(err)
	}
	if removed {
		p.log.Info("logout")
	}
	return removed, nil
}

// UserByID returns a known identity by id.
func (p *LocalAuthProvider) UserByID(ctx context.Context, id string) (AuthUser, bool) {
	return p.directory.FindByID(ctx, id)
}

// ActiveSessions reports the table size when the table can count itself.
func (p *LocalAuthProvider) ActiveSessions() (int, bool) {
	counter, ok := p.table.(interface{ Len() int })
	if !ok {
		return 0, false
	}
	return counter.Len(), true
}

func storeFailure(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var demoCreds = AuthCredentials{Email: "demo@example.com", Password: "password"}

func newTestProvider(t *testing.T, opts ...ProviderOption) (*LocalAuthProvider, *MemorySessionTable) {
	t.Helper()
	dir, err := NewDemoDirectory(bcrypt.MinCost)
	require.NoError(t, err)
	table := NewMemorySessionTable()
	opts = append([]ProviderOption{WithSessionTable(table)}, opts...)
	return NewLocalAuthProvider(dir, opts...), table
}

func TestLogin_ValidCredentials(t *testing.T) {
	p, table := newTestProvider(t)

	res := p.Login(context.Background(), demoCreds)

	require.True(t, res.Success)
	require.NotNil(t, res.Session)
	assert.Empty(t, res.Error)
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.Session.Token)
	assert.Equal(t, "demo@example.com", res.Session.User.Email)
	assert.Equal(t, DemoUser, res.Session.User)
	assert.Equal(t, 1, table.Len())
}

func TestLogin_ExpiresAfterSessionDuration(t *testing.T) {
	clock := newFakeClock()
	p, _ := newTestProvider(t, WithClock(clock.Now))

	res := p.Login(context.Background(), demoCreds)

	require.True(t, res.Success)
	assert.Equal(t, clock.Now().Add(24*time.Hour), res.Session.ExpiresAt)
}

func TestLogin_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		creds AuthCredentials
		msg   string
		err   error
	}{
		{"wrong password", AuthCredentials{Email: "demo@example.com", Password: "wrong"}, "Invalid email or password", ErrInvalidCredentials},
		{"unknown email", AuthCredentials{Email: "invalid@example.com", Password: "wrongpassword"}, "Invalid email or password", ErrInvalidCredentials},
		{"empty email", AuthCredentials{Email: "", Password: "x"}, "Email and password are required", ErrMissingCredentials},
		{"empty password", AuthCredentials{Email: "demo@example.com", Password: ""}, "Email and password are required", ErrMissingCredentials},
		{"both empty", AuthCredentials{}, "Email and password are required", ErrMissingCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, table := newTestProvider(t)

			res := p.Login(context.Background(), tc.creds)

			assert.False(t, res.Success)
			assert.Nil(t, res.Session)
			assert.Equal(t, tc.msg, res.Error)
			assert.ErrorIs(t, res.Err, tc.err)
			assert.Equal(t, 0, table.Len(), "rejected login must not touch the table")
		})
	}
}

func TestLogin_TwoLoginsYieldIndependentSessions(t *testing.T) {
	p, table := newTestProvider(t, WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()

	first := p.Login(ctx, demoCreds)
	second := p.Login(ctx, demoCreds)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.NotEqual(t, first.Session.Token, second.Session.Token)
	assert.Equal(t, 2, table.Len())
	assert.True(t, p.ValidateSession(ctx, first.Session.Token).IsValid)
	assert.True(t, p.ValidateSession(ctx, second.Session.Token).IsValid)
}

func TestLogin_ConcurrentLoginsNeverCollide(t *testing.T) {
	p, table := newTestProvider(t)
	ctx := context.Background()

	const n = 50
	tokens := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := p.Login(ctx, demoCreds)
			if res.Success {
				tokens <- res.Session.Token
			}
		}()
	}
	wg.Wait()
	close(tokens)

	seen := map[string]struct{}{}
	for tok := range tokens {
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, table.Len())
}

func TestValidateSession_ImmediatelyAfterLogin(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	res := p.ValidateSession(ctx, login.Session.Token)

	require.True(t, res.IsValid)
	require.NotNil(t, res.User)
	assert.Equal(t, "demo@example.com", res.User.Email)
	assert.Empty(t, res.Error)
}

func TestValidateSession_UnknownTokens(t *testing.T) {
	p, _ := newTestProvider(t)

	for _, token := range []string{"", "garbage", "invalid-token"} {
		res := p.ValidateSession(context.Background(), token)
		assert.False(t, res.IsValid, token)
		assert.Nil(t, res.User)
		assert.Equal(t, "Invalid session token", res.Error)
		assert.ErrorIs(t, res.Err, ErrInvalidToken)
	}
}

func TestValidateSession_ExpiredIsEvictedAndStaysInvalid(t *testing.T) {
	clock := newFakeClock()
	p, table := newTestProvider(t, WithClock(clock.Now))
	ctx := context.Background()
	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	clock.Advance(25 * time.Hour)
	// expired but not yet observed: still occupies the table
	assert.Equal(t, 1, table.Len())

	res := p.ValidateSession(ctx, login.Session.Token)
	assert.False(t, res.IsValid)
	assert.Equal(t, "Session expired", res.Error)
	assert.ErrorIs(t, res.Err, ErrSessionExpired)
	assert.Equal(t, 0, table.Len())

	again := p.ValidateSession(ctx, login.Session.Token)
	assert.False(t, again.IsValid)
	assert.Equal(t, "Invalid session token", again.Error)
}

func TestValidateSession_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	p, _ := newTestProvider(t, WithClock(clock.Now))
	ctx := context.Background()
	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	clock.Advance(24 * time.Hour)
	assert.True(t, p.ValidateSession(ctx, login.Session.Token).IsValid, "valid at exactly expiresAt")

	clock.Advance(time.Nanosecond)
	assert.Equal(t, "Session expired", p.ValidateSession(ctx, login.Session.Token).Error)
}

func TestValidateSession_DoesNotSlideExpiry(t *testing.T) {
	clock := newFakeClock()
	p, table := newTestProvider(t, WithClock(clock.Now))
	ctx := context.Background()
	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	clock.Advance(23 * time.Hour)
	require.True(t, p.ValidateSession(ctx, login.Session.Token).IsValid)

	stored, err := table.Lookup(ctx, login.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, login.Session.ExpiresAt, stored.ExpiresAt)

	clock.Advance(2 * time.Hour)
	assert.False(t, p.ValidateSession(ctx, login.Session.Token).IsValid)
}

func TestLogout(t *testing.T) {
	p, table := newTestProvider(t)
	ctx := context.Background()
	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	removed, err := p.Logout(ctx, login.Session.Token)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, table.Len())

	res := p.ValidateSession(ctx, login.Session.Token)
	assert.False(t, res.IsValid)

	removed, err = p.Logout(ctx, login.Session.Token)
	require.NoError(t, err)
	assert.False(t, removed, "second logout reports not found")
}

func TestLogout_UnknownToken(t *testing.T) {
	p, _ := newTestProvider(t)

	removed, err := p.Logout(context.Background(), "invalid-token")

	assert.NoError(t, err)
	assert.False(t, removed)
}

func TestLogout_OnlyRemovesOneSession(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	a := p.Login(ctx, demoCreds)
	b := p.Login(ctx, demoCreds)

	_, err := p.Logout(ctx, a.Session.Token)
	require.NoError(t, err)

	assert.False(t, p.ValidateSession(ctx, a.Session.Token).IsValid)
	assert.True(t, p.ValidateSession(ctx, b.Session.Token).IsValid)
}

func TestUserByID(t *testing.T) {
	p, _ := newTestProvider(t)

	u, ok := p.UserByID(context.Background(), "demo-user-id")
	assert.True(t, ok)
	assert.Equal(t, DemoUser, u)

	_, ok = p.UserByID(context.Background(), "invalid-id")
	assert.False(t, ok)
}

func TestActiveSessions(t *testing.T) {
	p, _ := newTestProvider(t)
	p.Login(context.Background(), demoCreds)

	n, ok := p.ActiveSessions()
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	dir, err := NewDemoDirectory(bcrypt.MinCost)
	require.NoError(t, err)
	storeBacked := NewLocalAuthProvider(dir, WithSessionTable(NewStoreSessionTable(NewMemorySessionStore())))
	_, ok = storeBacked.ActiveSessions()
	assert.False(t, ok)
}

type failingTable struct{ err error }

func (f failingTable) Insert(context.Context, AuthSession) (bool, error) { return false, f.err }
func (f failingTable) Lookup(context.Context, string) (*AuthSession, error) { return nil, f.err }
func (f failingTable) Remove(context.Context, string) (bool, error) { return false, f.err }

// failingDirectory stands in for an identity backend that cannot be reached.
type failingDirectory struct{ err error }

func (f failingDirectory) Authenticate(context.Context, string, string) (AuthUser, error) {
	return AuthUser{}, f.err
}
func (f failingDirectory) FindByID(context.Context, string) (AuthUser, bool) { return AuthUser{}, false }

func TestStoreFailuresAreDistinct(t *testing.T) {
	boom := errors.New("connection refused")
	p, _ := newTestProvider(t, WithSessionTable(failingTable{err: boom}))
	ctx := context.Background()
	token, err := OpaqueTokenCodec{}.Mint(DemoUser.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	login := p.Login(ctx, demoCreds)
	assert.False(t, login.Success)
	assert.Equal(t, "Session store unavailable", login.Error)
	assert.ErrorIs(t, login.Err, ErrStoreUnavailable)

	res := p.ValidateSession(ctx, token)
	assert.False(t, res.IsValid)
	assert.Equal(t, "Session store unavailable", res.Error)
	assert.ErrorIs(t, res.Err, ErrStoreUnavailable)
	assert.NotErrorIs(t, res.Err, ErrInvalidToken)

	removed, err := p.Logout(ctx, token)
	assert.False(t, removed)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestLogin_DirectoryFailureIsNotBadCredentials(t *testing.T) {
	table := NewMemorySessionTable()
	p := NewLocalAuthProvider(failingDirectory{err: errors.New("dial tcp: connection refused")}, WithSessionTable(table))

	res := p.Login(context.Background(), demoCreds)

	assert.False(t, res.Success)
	assert.Nil(t, res.Session)
	assert.Equal(t, "Session store unavailable", res.Error)
	assert.ErrorIs(t, res.Err, ErrStoreUnavailable)
	assert.NotErrorIs(t, res.Err, ErrInvalidCredentials)
	assert.Equal(t, 503, statusFor(res.Err))
	assert.Equal(t, 0, table.Len())

	wrapped := NewLocalAuthProvider(failingDirectory{err: ErrInvalidCredentials})
	res = wrapped.Login(context.Background(), demoCreds)
	assert.Equal(t, "Invalid email or password", res.Error)
	assert.ErrorIs(t, res.Err, ErrInvalidCredentials)
}

// collidingCodec always mints the same token.
type collidingCodec struct{}

func (collidingCodec) Mint(string, time.Time) (string, error) { return "same", nil }
func (collidingCodec) Parse(string) (TokenClaims, error) { return TokenClaims{UserID: DemoUser.ID}, nil }

func TestLogin_NeverOverwritesExistingToken(t *testing.T) {
	p, table := newTestProvider(t, WithTokenCodec(collidingCodec{}))
	ctx := context.Background()

	first := p.Login(ctx, demoCreds)
	require.True(t, first.Success)

	second := p.Login(ctx, demoCreds)
	assert.False(t, second.Success)
	assert.ErrorIs(t, second.Err, ErrStoreUnavailable)
	assert.Equal(t, 1, table.Len())
	assert.True(t, p.ValidateSession(ctx, "same").IsValid)
}

func TestProvider_OnStoreSessionTable(t *testing.T) {
	clock := newFakeClock()
	dir, err := NewDemoDirectory(bcrypt.MinCost)
	require.NoError(t, err)
	store := NewMemorySessionStoreWithClock(clock.Now)
	table := NewStoreSessionTable(store)
	table.now = clock.Now
	p := NewLocalAuthProvider(dir, WithSessionTable(table), WithClock(clock.Now))
	ctx := context.Background()

	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)
	assert.True(t, p.ValidateSession(ctx, login.Session.Token).IsValid)

	clock.Advance(25 * time.Hour)
	res := p.ValidateSession(ctx, login.Session.Token)
	assert.Equal(t, "Session expired", res.Error)
	assert.Equal(t, 0, store.Len())

	other := p.Login(ctx, demoCreds)
	removed, err := p.Logout(ctx, other.Session.Token)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, "Invalid session token", p.ValidateSession(ctx, other.Session.Token).Error)
}

func TestProvider_SignedCodec(t *testing.T) {
	codec, err := NewSignedTokenCodec([]byte("test-secret"))
	require.NoError(t, err)
	p, _ := newTestProvider(t, WithTokenCodec(codec))
	ctx := context.Background()

	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	claims, err := codec.Parse(login.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, DemoUser.ID, claims.UserID)
	assert.True(t, p.ValidateSession(ctx, login.Session.Token).IsValid)
}

func TestValidateSession_RejectsTokensTheCodecCannotParse(t *testing.T) {
	codec, err := NewSignedTokenCodec([]byte("test-secret"))
	require.NoError(t, err)
	p, table := newTestProvider(t, WithTokenCodec(codec))
	ctx := context.Background()

	ok, err := table.Insert(ctx, AuthSession{Token: "not-a-jwt", User: DemoUser, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.True(t, ok)

	res := p.ValidateSession(ctx, "not-a-jwt")
	assert.False(t, res.IsValid)
	assert.Equal(t, "Invalid session token", res.Error)
	assert.ErrorIs(t, res.Err, ErrInvalidToken)

	// an unparseable token never reaches the table
	broken, _ := newTestProvider(t, WithTokenCodec(codec), WithSessionTable(failingTable{err: errors.New("down")}))
	res = broken.ValidateSession(ctx, "not-a-jwt")
	assert.Equal(t, "Invalid session token", res.Error)
	assert.NotErrorIs(t, res.Err, ErrStoreUnavailable)
}

func TestValidateSession_RejectsTokenForAnotherUser(t *testing.T) {
	p, table := newTestProvider(t)
	ctx := context.Background()
	token, err := OpaqueTokenCodec{}.Mint("someone-else", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = table.Insert(ctx, AuthSession{Token: token, User: DemoUser, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	res := p.ValidateSession(ctx, token)
	assert.False(t, res.IsValid)
	assert.Equal(t, "Invalid session token", res.Error)
}

func TestValidateSession_SignedTokenPastExpiryReportsExpired(t *testing.T) {
	codec, err := NewSignedTokenCodec([]byte("test-secret"))
	require.NoError(t, err)
	clock := newFakeClock()
	codec.now = clock.Now
	p, _ := newTestProvider(t, WithTokenCodec(codec), WithClock(clock.Now))
	ctx := context.Background()

	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	clock.Advance(25 * time.Hour)
	res := p.ValidateSession(ctx, login.Session.Token)
	assert.Equal(t, "Session expired", res.Error)
	assert.ErrorIs(t, res.Err, ErrSessionExpired)
	assert.Equal(t, "Invalid session token", p.ValidateSession(ctx, login.Session.Token).Error)
}

func TestProvider_StoreTableForgetsExpiredAfterRetention(t *testing.T) {
	clock := newFakeClock()
	dir, err := NewDemoDirectory(bcrypt.MinCost)
	require.NoError(t, err)
	table := NewStoreSessionTable(NewMemorySessionStoreWithClock(clock.Now))
	table.now = clock.Now
	p := NewLocalAuthProvider(dir, WithSessionTable(table), WithClock(clock.Now))
	ctx := context.Background()

	login := p.Login(ctx, demoCreds)
	require.True(t, login.Success)

	clock.Advance(SessionDuration + ExpiredRetention - time.Minute)
	assert.Equal(t, "Session expired", p.ValidateSession(ctx, login.Session.Token).Error)

	late := p.Login(ctx, demoCreds)
	require.True(t, late.Success)
	clock.Advance(SessionDuration + ExpiredRetention + time.Minute)
	assert.Equal(t, "Invalid session token", p.ValidateSession(ctx, late.Session.Token).Error)
}

package service

import (
	"context"
	"io"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/service/servicetest"
	"github.com/vchernov/bank-cards/internal/token"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func requireCategory(t *testing.T, err error, category goerrors.Category) {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a structured error, got %v", err)
	assert.Equal(t, category, richErr.Category)
}

// authFixture wires an AuthService over the in-memory store with a
// test-controlled clock.
type authFixture struct {
	svc   *AuthService
	store *servicetest.Store
	clock time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		store: servicetest.New(),
		clock: time.Now(),
	}
	jwtMgr := token.NewManager("test-secret", 15*time.Minute, 24*time.Hour)
	f.svc = NewAuthService(f.store, f.store, jwtMgr, testLogger(), nil)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *authFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *authFixture) register(t *testing.T) *AuthResponse {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	return resp
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	f := newAuthFixture(t)

	resp := f.register(t)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.NotEqual(t, resp.AccessToken, resp.RefreshToken)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	// Both rows land in the ledger, live.
	rows := f.store.TokensForUser(resp.User.ID)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.Live())
	}

	user, err := f.store.UserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser}, user.Roles)
	assert.True(t, user.Active)
	// Password is stored hashed, never plaintext.
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), "", "alice@example.com", "password123")
	requireCategory(t, err, goerrors.CategoryValidation)

	_, err = f.svc.Register(context.Background(), "alice", "alice@example.com", "short")
	requireCategory(t, err, goerrors.CategoryValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	_, err := f.svc.Register(context.Background(), "bob", "alice@example.com", "password123")
	requireCategory(t, err, goerrors.CategoryConflict)

	_, err = f.svc.Register(context.Background(), "alice", "bob@example.com", "password123")
	requireCategory(t, err, goerrors.CategoryConflict)
}

func TestAuthenticateRevokesPriorSessions(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t)
	f.advance(time.Minute)

	second, err := f.svc.Authenticate(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	rows := f.store.TokensForUser(second.User.ID)
	require.Len(t, rows, 4)
	live := 0
	for _, row := range rows {
		if row.Live() {
			live++
		}
	}
	assert.Equal(t, 2, live)

	// Every pre-login credential is dead.
	old, err := f.store.TokenByValue(context.Background(), first.AccessToken)
	require.NoError(t, err)
	assert.False(t, old.Live())
}

func TestAuthenticateAtSameInstantAsRegistration(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t)

	// The clock does not move: a double-submitted login lands in the
	// same second as the registration. The new pair must still be
	// distinct strings, and the revoked rows must stay revoked.
	second, err := f.svc.Authenticate(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	rows := f.store.TokensForUser(second.User.ID)
	require.Len(t, rows, 4)

	old, err := f.store.TokenByValue(context.Background(), first.AccessToken)
	require.NoError(t, err)
	assert.False(t, old.Live())

	_, err = f.svc.ValidateAccess(context.Background(), first.AccessToken)
	requireCategory(t, err, goerrors.CategoryAuth)
	_, err = f.svc.ValidateAccess(context.Background(), second.AccessToken)
	require.NoError(t, err)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	_, err := f.svc.Authenticate(context.Background(), "alice@example.com", "wrong-password")
	requireCategory(t, err, goerrors.CategoryAuth)

	_, err = f.svc.Authenticate(context.Background(), "nobody@example.com", "password123")
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestAuthenticateRejectsBlockedUser(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)
	require.NoError(t, f.store.SetUserActive(context.Background(), resp.User.ID, false))

	_, err := f.svc.Authenticate(context.Background(), "alice@example.com", "password123")
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t)
	f.advance(time.Minute)

	second, err := f.svc.Refresh(context.Background(), "Bearer "+first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The redeemed refresh token is dead; replaying it fails.
	old, err := f.store.TokenByValue(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.False(t, old.Live())

	f.advance(time.Minute)
	_, err = f.svc.Refresh(context.Background(), "Bearer "+first.RefreshToken)
	requireCategory(t, err, goerrors.CategoryAuth)

	// The new pair works.
	f.advance(time.Minute)
	_, err = f.svc.Refresh(context.Background(), "Bearer "+second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)

	_, err := f.svc.Refresh(context.Background(), "Bearer "+resp.AccessToken)
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestRefreshRejectsMissingBearer(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "")
	requireCategory(t, err, goerrors.CategoryAuth)

	_, err = f.svc.Refresh(context.Background(), "Token abc")
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestValidateAccess(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)

	user, err := f.svc.ValidateAccess(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)

	// Refresh tokens do not grant access.
	_, err = f.svc.ValidateAccess(context.Background(), resp.RefreshToken)
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestValidateAccessRejectsRevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)

	require.NoError(t, f.store.RevokeToken(context.Background(), resp.AccessToken))

	// Signature and embedded expiry are still valid; the ledger wins.
	_, err := f.svc.ValidateAccess(context.Background(), resp.AccessToken)
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestValidateAccessRejectsBlockedUser(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)
	require.NoError(t, f.store.SetUserActive(context.Background(), resp.User.ID, false))

	_, err := f.svc.ValidateAccess(context.Background(), resp.AccessToken)
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)

	require.NoError(t, f.svc.Logout(context.Background(), "Bearer "+resp.AccessToken))

	_, err := f.svc.ValidateAccess(context.Background(), resp.AccessToken)
	requireCategory(t, err, goerrors.CategoryAuth)
}

func TestExpireTokens(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.register(t)

	// Past the access TTL but within the refresh TTL.
	f.advance(time.Hour)
	n, err := f.svc.ExpireTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows := f.store.TokensForUser(resp.User.ID)
	require.Len(t, rows, 2)
	for _, row := range rows {
		if row.TokenType == models.TokenTypeAccess {
			assert.True(t, row.Expired)
		} else {
			assert.True(t, row.Live())
		}
	}
}

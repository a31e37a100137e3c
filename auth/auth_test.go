package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/auth"
	"github.com/agristock/ledger-engine/ledger"
	"github.com/agristock/ledger-engine/store/sqlite"
)

func newTestAuth(t *testing.T, ttl time.Duration) *auth.Service {
	store, err := sqlite.New(":memory:", sqlite.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return auth.NewService(store, "test-secret", ttl, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuth(t, time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotZero(t, user.ID)

	token, logged, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, logged.ID)

	actor, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)
	assert.Equal(t, "alice", actor.Username)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newTestAuth(t, time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "bob", "hunter22")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials,
		"unknown user and wrong password must be indistinguishable")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := newTestAuth(t, time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol", "hunter22")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "carol", "other-password")
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestRegister_WeakPasswordRejected(t *testing.T) {
	svc := newTestAuth(t, time.Hour)

	_, err := svc.Register(context.Background(), "dave", "short")
	assert.Error(t, err)
}

func TestVerify_Garbage(t *testing.T) {
	svc := newTestAuth(t, time.Hour)

	_, err := svc.Verify("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerify_ExpiredToken(t *testing.T) {
	svc := newTestAuth(t, -time.Minute)
	ctx := context.Background()

	_, err := svc.Register(ctx, "eve", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "eve", "hunter22")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	svc := newTestAuth(t, time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "frank", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "frank", "hunter22")
	require.NoError(t, err)

	other := newTestAuth(t, time.Hour)
	_, err = other.Verify(token)
	assert.Error(t, err)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestMiddleware(t *testing.T) {
	svc := newTestAuth(t, time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "grace", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "grace", "hunter22")
	require.NoError(t, err)

	var seen ledger.Actor
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFrom(r.Context())
		require.True(t, ok)
		seen = actor
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Bad token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer junk")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Good token.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grace", seen.Username)
}

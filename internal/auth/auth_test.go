package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"schoolattendance/internal/testutil/testdb"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testdb.SQLite(t)
	svc := NewService(NewRepository(db.Client), NewSigner("test", "secret", time.Minute, time.Hour))
	svc.SetCost(bcrypt.MinCost)
	return svc
}

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("school", "k", time.Minute, time.Hour)
	pair, err := s.Issue("u1", "a@b.c")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := s.Parse(pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@b.c", claims.Email)

	_, err = s.Parse(pair.RefreshToken, TokenAccess)
	assert.Error(t, err, "refresh token must not pass as access token")

	_, err = NewSigner("other", "k", time.Minute, time.Hour).Parse(pair.AccessToken, TokenAccess)
	assert.Error(t, err)
	_, err = NewSigner("school", "wrong", time.Minute, time.Hour).Parse(pair.AccessToken, TokenAccess)
	assert.Error(t, err)
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner("school", "k", time.Minute, time.Hour)
	pair, err := s.Issue("u1", "a@b.c")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Parse(pair.AccessToken, TokenAccess)
	assert.Error(t, err)
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Admin", "Admin@School.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "admin@school.com", reg.User.Email)

	_, err = svc.Register(ctx, "Again", "admin@school.com", "x")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(ctx, "admin@school.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@school.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, "admin@school.com", "password123")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, refreshed.User.ID)

	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "rotated token is revoked")

	require.NoError(t, svc.Logout(ctx, refreshed.Tokens.RefreshToken))
	_, err = svc.Refresh(ctx, refreshed.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	me, err := svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", me.Name)
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer := NewSigner("school", "k", time.Minute, time.Hour)
	r := gin.New()
	r.GET("/me", RequireUser(signer), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pair, err := signer.Issue("u42", "t@school.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u42", w.Body.String())
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	s, err := NewService("test-secret", "admin", string(hash), time.Hour)
	require.NoError(t, err)
	return s
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("", "admin", "", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestLoginAndValidate(t *testing.T) {
	s := newTestService(t)

	token, expires, err := s.Login("admin", "hunter2")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestService(t)

	_, _, err := s.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = s.Login("root", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateRejectsExpiredAndForeignTokens(t *testing.T) {
	s := newTestService(t)
	token, _, err := s.Login("admin", "hunter2")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewService("other-secret", "admin", "", time.Hour)
	require.NoError(t, err)
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	s := newTestService(t)
	token, expires, err := s.Login("admin", "hunter2")
	require.NoError(t, err)

	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name string
		set  func(r *http.Request)
		want int
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(Cookie(token, expires)) }, http.StatusNoContent},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			tt.set(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

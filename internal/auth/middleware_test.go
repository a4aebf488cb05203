package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(UserContextKey).(*Claims)
		if claims != nil {
			assert.Equal(t, "operator", claims.Username)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	a := NewAuthenticator(Config{})
	handler := Middleware(a)(protectedHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	a := NewAuthenticator(Config{Username: "operator", Password: "pw", JWTSecret: "s"})
	handler := Middleware(a)(protectedHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	a := NewAuthenticator(Config{Username: "operator", Password: "pw", JWTSecret: "s", TokenExpiry: time.Hour})
	token, _, err := a.Authenticate("operator", "pw")
	require.NoError(t, err)

	handler := Middleware(a)(protectedHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	a := NewAuthenticator(Config{Username: "operator", Password: "pw", JWTSecret: "s", TokenExpiry: time.Hour})
	token, _, err := a.Authenticate("operator", "pw")
	require.NoError(t, err)

	handler := Middleware(a)(protectedHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	a := NewAuthenticator(Config{Username: "operator", Password: "pw", JWTSecret: "s"})
	handler := Middleware(a)(protectedHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

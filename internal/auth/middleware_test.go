package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-payments/internal/auth"
	"github.com/noah-isme/toko-payments/internal/common"
)

func TestRequireAuth(t *testing.T) {
	tokens, err := auth.NewTokens(auth.Config{Secret: "secret", AccessTokenTTL: time.Minute})
	require.NoError(t, err)
	token, _, err := tokens.Issue("u1")
	require.NoError(t, err)

	var seen string
	handler := auth.Middleware{Tokens: tokens, AccessCookie: "access_token"}.RequireAuth(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = common.UserID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		user   string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent, "u1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: token}) }, http.StatusNoContent, "u1"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.user, seen)
		})
	}
}

func TestRequireAuthWithoutParser(t *testing.T) {
	handler := auth.Middleware{}.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hound/internal/auth"
)

func protected(t *testing.T, a *auth.Authenticator) http.Handler {
	t.Helper()
	return AuthMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := GetUserFromContext(r.Context()); claims != nil {
			w.Write([]byte(claims.Username))
			return
		}
		w.Write([]byte("anonymous"))
	}))
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Config{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	protected(t, a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestAuthMiddlewareEnabled(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Config{Enabled: true, Password: "pw", JWTSecret: "k"})
	require.NoError(t, err)
	token, _, err := a.Authenticate("admin", "pw")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected(t, a).ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "admin", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), "error")
			}
		})
	}
}

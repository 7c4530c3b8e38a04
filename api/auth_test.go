package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(token string) header {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

func TestAuthenticator_Resolve(t *testing.T) {
	auth := &Authenticator{Secret: []byte("test-secret"), Issuer: "flexitime", PrivilegedRole: "hr_manager"}

	t.Run("no credentials is the demo actor", func(t *testing.T) {
		actor, err := auth.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, DemoActor, actor)
	})

	t.Run("headers name the actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		asEmployee("anna")(req)
		actor, err := auth.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "anna", actor.ID)
		assert.False(t, actor.Privileged)
	})

	t.Run("token role grants privilege", func(t *testing.T) {
		token, err := auth.Sign("hr-1", "hr_manager", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		bearer(token)(req)

		actor, err := auth.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "hr-1", actor.ID)
		assert.True(t, actor.Privileged)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := auth.Sign("anna", "employee", -time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		bearer(token)(req)

		_, err = auth.Resolve(req)
		assert.ErrorIs(t, err, errUnauthorized)
	})

	t.Run("foreign secret", func(t *testing.T) {
		other := &Authenticator{Secret: []byte("other"), Issuer: "flexitime"}
		token, err := other.Sign("anna", "hr_manager", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		bearer(token)(req)

		_, err = auth.Resolve(req)
		assert.ErrorIs(t, err, errUnauthorized)
	})

	t.Run("not a bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic YW5uYTpzZWNyZXQ=")
		_, err := auth.Resolve(req)
		assert.ErrorIs(t, err, errUnauthorized)
	})
}

func TestRequiredAuth(t *testing.T) {
	// GIVEN: a server that requires tokens
	h := newTestHandler(t)
	h.Auth = &Authenticator{Secret: []byte("test-secret"), Required: true, PrivilegedRole: "hr_manager"}
	router := NewRouter(h)

	// THEN: health stays public
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/health", nil).Code)

	// AND: headers alone are not enough
	rec := do(t, router, http.MethodGet, "/api/employees", nil, asHR)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[ErrorResponse](t, rec).Code)

	// AND: an HR token works
	token, err := h.Auth.Sign("hr-1", "hr_manager", time.Hour)
	require.NoError(t, err)
	rec = do(t, router, http.MethodPost, "/api/employees",
		map[string]any{"id": "anna", "name": "Anna Keller"}, bearer(token))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// AND: an employee token only sees its own record
	token, err = h.Auth.Sign("anna", "employee", time.Hour)
	require.NoError(t, err)
	rec = do(t, router, http.MethodGet, "/api/employees/anna", nil, bearer(token))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/employees",
		map[string]any{"id": "ben", "name": "Ben"}, bearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

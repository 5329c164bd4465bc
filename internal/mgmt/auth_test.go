package mgmt

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedRequest(t *testing.T, method, path, token string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthNoneMode(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "none"})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthAPIKeyValid(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "api-key", APIKey: "test-secret-key"})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", "test-secret-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthAPIKeyMissing(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "api-key", APIKey: "test-secret-key"})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "missing_auth", problem.Type)
}

func TestAuthAPIKeyInvalid(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "api-key", APIKey: "test-secret-key"})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", "wrong-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "invalid_api_key", problem.Type)
}

func TestAuthBadScheme(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "api-key", APIKey: "test-secret-key"})

	req, err := http.NewRequest("GET", "/api/v1/projects", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "invalid_auth_scheme", problem.Type)
}

func TestAuthProbesSkipAuth(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "api-key", APIKey: "test-secret-key"})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := ts.server.App().Test(authedRequest(t, "GET", path, ""), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAuthJWTValid(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "jwt", JWTSecret: "jwt-signing-secret"})

	token := signToken(t, "jwt-signing-secret", jwt.MapClaims{
		"sub":  "ops@example.com",
		"role": "operator",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthJWTWrongSecret(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "jwt", JWTSecret: "jwt-signing-secret"})

	token := signToken(t, "some-other-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "invalid_token", problem.Type)
}

func TestAuthJWTExpired(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "jwt", JWTSecret: "jwt-signing-secret"})

	token := signToken(t, "jwt-signing-secret", jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthJWTReadonlyCannotMutate(t *testing.T) {
	ts := newTestStack(t, AuthConfig{Mode: "jwt", JWTSecret: "jwt-signing-secret"})

	token := signToken(t, "jwt-signing-secret", jwt.MapClaims{
		"role": "readonly",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.server.App().Test(authedRequest(t, "POST", "/api/v1/projects/x/cancel", token), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "insufficient_role", problem.Type)
}

func TestAuthRolesMapGrantsScopedAccess(t *testing.T) {
	ts := newTestStack(t, AuthConfig{
		Mode:   "api-key",
		APIKey: "admin-key",
		Roles:  map[string]Role{"viewer-key": RoleReadOnly},
	})

	resp, err := ts.server.App().Test(authedRequest(t, "GET", "/api/v1/projects", "viewer-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.server.App().Test(authedRequest(t, "DELETE", "/api/v1/projects/x", "viewer-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

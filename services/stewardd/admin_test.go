package stewardd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"cronosquity/services/stewardd/audit"
)

func newTestAdmin(t *testing.T) (*httptest.Server, *Steward) {
	t.Helper()
	loop, _ := newTestSteward(t, &funcPrograms{}, &funcScores{})
	auth, err := NewAuthenticator("test-token")
	require.NoError(t, err)
	server := httptest.NewServer(NewAdminServer(loop, auth))
	t.Cleanup(server.Close)
	return server, loop
}

func adminRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAdminControlEndpointsRequireToken(t *testing.T) {
	server, _ := newTestAdmin(t)
	for _, path := range []string{"/status", "/logs"} {
		resp := adminRequest(t, http.MethodGet, server.URL+path, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := adminRequest(t, http.MethodPost, server.URL+"/pause", "wrong-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminPauseResume(t *testing.T) {
	server, loop := newTestAdmin(t)

	resp := adminRequest(t, http.MethodPost, server.URL+"/pause", "test-token")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.True(t, loop.Status().Paused)

	resp = adminRequest(t, http.MethodPost, server.URL+"/resume", "test-token")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.False(t, loop.Status().Paused)

	resp = adminRequest(t, http.MethodGet, server.URL+"/pause", "test-token")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAdminStatus(t *testing.T) {
	server, loop := newTestAdmin(t)
	loop.Pause()
	resp := adminRequest(t, http.MethodGet, server.URL+"/status", "test-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.True(t, status.Paused)
}

func TestAdminLogs(t *testing.T) {
	server, loop := newTestAdmin(t)
	for i := 0; i < 3; i++ {
		loop.audit(audit.Entry{ProgramID: int64(i), Type: audit.TypeInfo, Message: "entry"})
	}

	resp := adminRequest(t, http.MethodGet, server.URL+"/logs?limit=2", "test-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []audit.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	require.Equal(t, int64(2), entries[0].ProgramID, "most recent entry first")

	resp = adminRequest(t, http.MethodGet, server.URL+"/logs?limit=-1", "test-token")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminHealthAndMetricsAreOpen(t *testing.T) {
	server, _ := newTestAdmin(t)
	resp := adminRequest(t, http.MethodGet, server.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = adminRequest(t, http.MethodGet, server.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewAuthenticatorRejectsEmptyToken(t *testing.T) {
	_, err := NewAuthenticator("  ")
	require.Error(t, err)
}

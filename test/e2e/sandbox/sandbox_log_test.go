package sandbox_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogRecordsAndClears(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	h.signUpAndConfirm(t)

	status, body := h.getJSON(t, "/v1/log")
	require.Equal(t, http.StatusOK, status)
	count, _ := body["count"].(float64)
	require.Greater(t, count, float64(0))

	entries, _ := body["entries"].([]any)
	require.Len(t, entries, int(count))
	first, _ := entries[0].(map[string]any)
	require.Equal(t, "signUp", first["origin"])
	require.NotEmpty(t, first["id"])
	require.NotEmpty(t, first["at"])

	req, err := http.NewRequest(http.MethodDelete, h.srv.URL+"/v1/log", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	status, body = h.getJSON(t, "/v1/log")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(0), body["count"])
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)

	status, body := h.getJSON(t, "/version")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "authsandbox", body["service"])
	require.Equal(t, "e2e", body["version"])
	require.Equal(t, "test", body["env"])
	require.NotEmpty(t, body["go_version"])
}

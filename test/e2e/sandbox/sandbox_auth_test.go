package sandbox_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignUpConfirmSignOut(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	h.signUpAndConfirm(t)

	status, body := h.getJSON(t, "/v1/auth/session")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "authenticated", body["state"])
	require.Equal(t, true, body["authenticated"])
	require.Equal(t, testEmail, body["principal"])

	status, body = h.postJSON(t, "/v1/auth/signout", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "anonymous", body["state"])

	// Signing out again is a no-op.
	status, _ = h.postJSON(t, "/v1/auth/signout", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestSignInRejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	h.signUpAndConfirm(t)
	status, _ := h.postJSON(t, "/v1/auth/signout", nil)
	require.Equal(t, http.StatusOK, status)

	t.Run("wrong password", func(t *testing.T) {
		status, body := h.postJSON(t, "/v1/auth/signin", map[string]any{
			"username": testEmail,
			"password": "Wrong999!",
		})
		require.Equal(t, http.StatusUnprocessableEntity, status)
		require.Equal(t, "gateway_rejection", body["error"])

		status, body = h.getJSON(t, "/v1/auth/session")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "failed", body["state"])
	})

	t.Run("retry succeeds from failed", func(t *testing.T) {
		status, body := h.postJSON(t, "/v1/auth/signin", map[string]any{
			"username": testEmail,
			"password": testPassword,
		})
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "authenticated", body["state"])
	})
}

func TestValidationAndStateErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)

	// Principal must be an email address.
	status, body := h.postJSON(t, "/v1/auth/signin", map[string]any{
		"username": "bob",
		"password": testPassword,
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation_error", body["error"])

	// Confirming with no sign-up pending is a state error.
	status, body = h.postJSON(t, "/v1/auth/confirm", map[string]any{
		"username": testEmail,
		"code":     "123456",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "invalid_state_transition", body["error"])

	// Responding to a challenge that does not exist likewise.
	status, body = h.postJSON(t, "/v1/auth/challenge/respond", map[string]any{
		"code": "123456",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "invalid_state_transition", body["error"])
}

func TestCredentialEndpointsRateLimited(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)

	var limited bool
	for i := 0; i < 12; i++ {
		status, _ := h.postJSON(t, "/v1/auth/signin", map[string]any{
			"username": testEmail,
			"password": "Wrong999!",
		})
		if status == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited, "expected the strict limit to trip within 12 attempts")
}

package sandbox_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/internal/auth/flow"
	"github.com/dkellersch/authsandbox/internal/auth/gateway/memgw"
	"github.com/dkellersch/authsandbox/internal/sandbox/httpapi"
)

/*
 * Black-box tests against the sandbox harness wired to the in-process
 * provider, the same assembly the offline mode runs. No external services.
 */

const (
	testEmail    = "e2e@example.com"
	testPassword = "Passw0rd!"
)

type harness struct {
	srv  *httptest.Server
	mem  *memgw.Gateway
	pipe *bridge.Pipe
}

// newHarness assembles provider, bridge, controller and router the way the
// application wiring does. withBridge selects the native-shell stand-in;
// without it federated sign-in takes the redirect path.
func newHarness(t *testing.T, withBridge bool) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := memgw.New(memgw.Options{Issuer: "authsandbox-e2e"})

	flowCfg := flow.Config{Gateway: mem, Logger: logger}

	var pipe *bridge.Pipe
	if withBridge {
		pipe = newTestHostPipe()
		flowCfg.Bridge = pipe
	}

	controller := flow.New(flowCfg)

	routerCfg := httpapi.Config{
		Controller:   controller,
		Completer:    mem,
		Logger:       logger,
		BuildVersion: "e2e",
		Env:          "test",
	}
	if pipe != nil {
		routerCfg.Bridge = pipe

		// The application's event pump: bridge results land in the event log.
		go func() {
			for ev := range pipe.Events() {
				controller.Log().Append(ev.Name, ev.Payload)
			}
		}()
	}

	srv := httptest.NewServer(httpapi.New(routerCfg))
	t.Cleanup(func() {
		srv.Close()
		if pipe != nil {
			pipe.Close()
		}
	})

	return &harness{srv: srv, mem: mem, pipe: pipe}
}

// newTestHostPipe wires a host that answers federated requests with an
// unsigned identity token and echoes IAP requests as result events.
func newTestHostPipe() *bridge.Pipe {
	var pipe *bridge.Pipe
	pipe = bridge.NewPipe(bridge.Host{
		FederatedToken: func(_ context.Context, provider string) (*bridge.FederatedToken, error) {
			token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
				"email": "native@example.com",
				"iss":   provider,
				"exp":   time.Now().Add(time.Hour).Unix(),
			})
			signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			if err != nil {
				return nil, err
			}
			return &bridge.FederatedToken{IDToken: signed, Email: "native@example.com"}, nil
		},
		Products: func(_ context.Context, offerNames []string) error {
			pipe.Emit(bridge.EventProductsResult, offerNames)
			return nil
		},
		Purchase: func(_ context.Context, req bridge.PurchaseRequest) error {
			pipe.Emit(bridge.EventPurchaseResult, req)
			return nil
		},
		Transactions: func(context.Context) error {
			pipe.Emit(bridge.EventTransactionsResult, []string{})
			return nil
		},
	})
	return pipe
}

// postJSON sends a POST with a JSON body and decodes the JSON response.
func (h *harness) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	resp, err := http.Post(h.srv.URL+path, "application/json", reader)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeMap(t, resp.Body)
}

func (h *harness) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeMap(t, resp.Body)
}

func decodeMap(t *testing.T, r io.Reader) map[string]any {
	t.Helper()

	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	if len(raw) == 0 {
		return nil
	}

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

// signUpAndConfirm registers testEmail and confirms it with the delivered
// code. The armed auto sign-in leaves the session authenticated.
func (h *harness) signUpAndConfirm(t *testing.T) {
	t.Helper()

	status, body := h.postJSON(t, "/v1/auth/signup", map[string]any{
		"username":   testEmail,
		"password":   testPassword,
		"attributes": map[string]string{"email": testEmail},
	})
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	require.Equal(t, true, body["confirmation_required"])

	status, body = h.postJSON(t, "/v1/auth/confirm", map[string]any{
		"username": testEmail,
		"code":     h.mem.DeliveredCode(testEmail),
	})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, "authenticated", body["state"])
}

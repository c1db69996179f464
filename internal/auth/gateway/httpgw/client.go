// Package httpgw implements the gateway contract against a hosted identity
// provider's JSON API. Provider rejections come back as structured failures
// and are mapped to the core error taxonomy at this boundary; anything that
// never produced a response is a transport failure.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
)

const defaultTimeout = 10 * time.Second

// Client talks to one provider endpoint. The zero value is not usable; use
// New.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a provider client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// doJSON performs a request with an optional JSON body and bearer token,
// decodes a success body into target (when non-nil) and converts failures to
// typed errors.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, bearer string, target any, expectStatus int) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.Transport("identity provider unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Transport("failed to read provider response", err)
	}

	if resp.StatusCode != expectStatus {
		return parseErrorResponse(resp.StatusCode, raw)
	}

	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			return domain.Transport("failed to decode provider response", err)
		}
	}
	return nil
}

// parseErrorResponse converts a non-success provider body into a typed error.
// Bodies that don't parse still yield a rejection carrying the HTTP status.
func parseErrorResponse(status int, body []byte) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Message != "":
			return domain.Rejection(errResp.Message, nil)
		case errResp.Error != "":
			// Some providers send only an error code, no human message.
			return domain.Rejection(errResp.Error, nil)
		}
	}

	return domain.Rejection(fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)), nil)
}

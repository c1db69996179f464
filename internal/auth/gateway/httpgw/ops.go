package httpgw

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
)

// Register creates an account with the provider.
func (c *Client) Register(ctx context.Context, p gateway.RegisterParams) (gateway.RegisterResult, error) {
	req := signUpRequest{
		Username:   p.Username,
		Password:   p.Password,
		Attributes: p.Attributes,
		AutoSignIn: p.AutoSignIn,
	}

	var resp signUpResponse
	if err := c.doJSON(ctx, http.MethodPost, "/signup", req, "", &resp, http.StatusCreated); err != nil {
		return gateway.RegisterResult{}, err
	}

	return gateway.RegisterResult{
		ConfirmationRequired: !resp.UserConfirmed,
		CodeDestination:      resp.CodeDestination,
		AutoSignInArmed:      resp.AutoSignIn,
	}, nil
}

// ConfirmRegistration confirms an account with a delivered code.
func (c *Client) ConfirmRegistration(ctx context.Context, username, code string) error {
	req := confirmRequest{Username: username, Code: code}
	return c.doJSON(ctx, http.MethodPost, "/confirm", req, "", nil, http.StatusOK)
}

// PasswordSignIn starts a password authentication.
func (c *Client) PasswordSignIn(ctx context.Context, username, password string) (gateway.SignInResult, error) {
	req := signInRequest{Username: username, Password: password}

	var resp signInResponse
	if err := c.doJSON(ctx, http.MethodPost, "/signin", req, "", &resp, http.StatusOK); err != nil {
		return gateway.SignInResult{}, err
	}
	return resp.toSignInResult()
}

// SelectMFAChallenge answers a selection challenge with the chosen factor.
func (c *Client) SelectMFAChallenge(ctx context.Context, username string, kind domain.ChallengeKind, continuation string) (gateway.SignInResult, error) {
	req := selectChallengeRequest{
		Username:      username,
		ChallengeName: gateway.ChallengeKindToWire(kind),
		Session:       continuation,
	}

	var resp signInResponse
	if err := c.doJSON(ctx, http.MethodPost, "/challenge/select", req, "", &resp, http.StatusOK); err != nil {
		return gateway.SignInResult{}, err
	}
	return resp.toSignInResult()
}

// RespondToChallenge answers an OTP challenge with the user's code.
func (c *Client) RespondToChallenge(ctx context.Context, username, code, continuation string) (gateway.SignInResult, error) {
	req := respondRequest{Username: username, Code: code, Session: continuation}

	var resp signInResponse
	if err := c.doJSON(ctx, http.MethodPost, "/challenge/respond", req, "", &resp, http.StatusOK); err != nil {
		return gateway.SignInResult{}, err
	}
	return resp.toSignInResult()
}

// FederatedSignInURL builds the hosted UI authorize URL locally; no round
// trip is needed to start a redirect handoff.
func (c *Client) FederatedSignInURL(provider string) (string, error) {
	if provider == "" {
		return "", domain.Rejection("identity provider is required", nil)
	}
	return fmt.Sprintf(
		"%s/oauth2/authorize?identity_provider=%s&response_type=code",
		c.BaseURL,
		url.QueryEscape(provider),
	), nil
}

// ResumeFederatedSession fetches the session a completed redirect handoff
// established.
func (c *Client) ResumeFederatedSession(ctx context.Context) (gateway.SignInResult, error) {
	var resp signInResponse
	if err := c.doJSON(ctx, http.MethodGet, "/oauth2/session", nil, "", &resp, http.StatusOK); err != nil {
		return gateway.SignInResult{}, err
	}
	return resp.toSignInResult()
}

// FederatedTokenExchange trades an externally obtained identity token for
// provider session material.
func (c *Client) FederatedTokenExchange(ctx context.Context, provider, idToken string) (gateway.SignInResult, error) {
	req := tokenExchangeRequest{Provider: provider, IDToken: idToken}

	var resp signInResponse
	if err := c.doJSON(ctx, http.MethodPost, "/oauth2/token-exchange", req, "", &resp, http.StatusOK); err != nil {
		return gateway.SignInResult{}, err
	}
	return resp.toSignInResult()
}

// SignOut invalidates the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string, global bool) error {
	req := signOutRequest{Global: global}
	return c.doJSON(ctx, http.MethodPost, "/signout", req, accessToken, nil, http.StatusNoContent)
}

// InitiateFactorProvisioning begins MFA factor setup for the authenticated
// principal.
func (c *Client) InitiateFactorProvisioning(ctx context.Context, accessToken string, factor domain.FactorKind) (gateway.Provisioning, error) {
	req := provisionRequest{Factor: gateway.FactorKindToWire(factor)}

	var resp provisionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/mfa/provision", req, accessToken, &resp, http.StatusOK); err != nil {
		return gateway.Provisioning{}, err
	}

	return gateway.Provisioning{
		Factor:          factor,
		SharedSecret:    resp.SecretCode,
		ProvisioningURI: resp.ProvisioningURI,
		CodeDestination: resp.CodeDestination,
	}, nil
}

// VerifyFactorProvisioning proves possession of the factor being set up.
func (c *Client) VerifyFactorProvisioning(ctx context.Context, accessToken, code string) error {
	req := verifyFactorRequest{Code: code}
	return c.doJSON(ctx, http.MethodPost, "/mfa/verify", req, accessToken, nil, http.StatusOK)
}

// SetPreferredFactor activates a verified factor as the principal's preferred
// MFA method.
func (c *Client) SetPreferredFactor(ctx context.Context, accessToken string, factor domain.FactorKind) error {
	req := preferenceRequest{Factor: gateway.FactorKindToWire(factor)}
	return c.doJSON(ctx, http.MethodPost, "/mfa/preference", req, accessToken, nil, http.StatusOK)
}

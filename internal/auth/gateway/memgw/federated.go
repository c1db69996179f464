package memgw

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
	"github.com/golang-jwt/jwt/v5"
)

// FederatedSignInURL builds the browser handoff URL for the redirect path.
func (g *Gateway) FederatedSignInURL(provider string) (string, error) {
	if provider == "" {
		return "", domain.Rejection("identity provider is required", nil)
	}
	return fmt.Sprintf(
		"%s/oauth2/authorize?identity_provider=%s&response_type=code",
		g.opts.AuthorizeBaseURL,
		url.QueryEscape(provider),
	), nil
}

// FederatedTokenExchange trades an external identity token for sandbox
// session material, creating the shadow account on first sight. The external
// token's signature is the upstream provider's concern; only its claims are
// read here.
func (g *Gateway) FederatedTokenExchange(_ context.Context, provider, idToken string) (gateway.SignInResult, error) {
	if idToken == "" {
		return gateway.SignInResult{}, domain.Rejection("identity token is required", nil)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return gateway.SignInResult{}, domain.Rejection("identity token is malformed", err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		email = fmt.Sprintf("%s-user@federated.invalid", provider)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.users[email]; !ok {
		g.users[email] = &user{
			email:      email,
			confirmed:  true,
			attributes: map[string]string{"email": email, "identities": provider},
		}
	}

	res, err := g.issueTokensLocked(email)
	if err != nil {
		return gateway.SignInResult{}, err
	}

	g.federated = &res
	return res, nil
}

// ResumeFederatedSession returns the session a completed redirect handoff
// established, once.
func (g *Gateway) ResumeFederatedSession(_ context.Context) (gateway.SignInResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.federated == nil {
		return gateway.SignInResult{}, domain.Rejection("no federated sign-in has completed", nil)
	}

	res := *g.federated
	g.federated = nil
	return res, nil
}

// CompleteRedirect simulates the hosted UI finishing a redirect handoff for
// principal: the session becomes available to ResumeFederatedSession. Used by
// the sandbox's callback route and by tests.
func (g *Gateway) CompleteRedirect(principal string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.users[principal]; !ok {
		g.users[principal] = &user{
			email:      principal,
			confirmed:  true,
			attributes: map[string]string{"email": principal},
		}
	}

	res, err := g.issueTokensLocked(principal)
	if err != nil {
		return err
	}

	g.federated = &res
	return nil
}

package flow

import (
	"context"
	"strings"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
)

// FederatedOutcome reports how a federated sign-in proceeded. RedirectURL is
// set on the redirect path, where completion arrives later via
// ResumeFederated; on the native-bridge path the exchange completes inline
// and State reflects where it landed.
type FederatedOutcome struct {
	RedirectURL string `json:"redirect_url,omitempty"`
	State       string `json:"state"`
}

// FederatedSignIn starts a federated authentication with the named external
// provider. Inside a native shell the identity token comes from the bridge
// and is exchanged immediately; otherwise the caller is handed a redirect URL
// and the attempt stays where it is until ResumeFederated.
func (c *Controller) FederatedSignIn(ctx context.Context, provider string) (FederatedOutcome, error) {
	const origin = "federatedSignIn"

	if err := c.begin(origin, domain.Anonymous, domain.Failed); err != nil {
		return FederatedOutcome{}, c.fail(origin, err)
	}
	defer c.end()

	if strings.TrimSpace(provider) == "" {
		return FederatedOutcome{}, c.fail(origin, domain.Validationf("provider is required"))
	}

	if c.bridge == nil {
		return c.federatedRedirect(origin, provider)
	}
	return c.federatedViaBridge(ctx, origin, provider)
}

// federatedRedirect hands off to the browser; fire-and-forget from the
// controller's point of view.
func (c *Controller) federatedRedirect(origin, provider string) (FederatedOutcome, error) {
	url, err := c.gw.FederatedSignInURL(provider)
	if err != nil {
		return FederatedOutcome{}, c.fail(origin, err)
	}

	c.record(origin, map[string]any{"provider": provider, "redirect_url": url})
	c.notify(EventRedirectStarted)

	return FederatedOutcome{RedirectURL: url, State: c.sessionState().String()}, nil
}

// federatedViaBridge asks the host shell for an identity token and exchanges
// it with the provider. A host that returns nothing is a transport failure
// and leaves the attempt untouched.
func (c *Controller) federatedViaBridge(ctx context.Context, origin, provider string) (FederatedOutcome, error) {
	token, err := c.bridge.RequestFederatedToken(ctx, provider)
	if err != nil {
		c.notify(EventRedirectFailed)
		return FederatedOutcome{}, c.fail(origin, domain.Transport("native bridge returned no federated token", err))
	}

	res, err := c.gw.FederatedTokenExchange(ctx, provider, token.IDToken)
	if err != nil {
		c.setFailed()
		c.notify(EventRedirectFailed)
		return FederatedOutcome{}, c.fail(origin, err)
	}

	if err := c.foldSignIn(origin, res); err != nil {
		return FederatedOutcome{}, err
	}
	return FederatedOutcome{State: c.sessionState().String()}, nil
}

// ResumeFederated completes a redirect-path federated sign-in by asking the
// provider for the session the handoff established. The UI calls this when
// the redirect lands back, mirroring the original's signInWithRedirect
// listener.
func (c *Controller) ResumeFederated(ctx context.Context) (SignInOutcome, error) {
	const origin = "resumeFederated"

	if err := c.begin(origin, domain.Anonymous, domain.Failed); err != nil {
		return SignInOutcome{}, c.fail(origin, err)
	}
	defer c.end()

	res, err := c.gw.ResumeFederatedSession(ctx)
	if err != nil {
		c.setFailed()
		c.notify(EventRedirectFailed)
		return SignInOutcome{}, c.fail(origin, err)
	}

	if err := c.foldSignIn(origin, res); err != nil {
		return SignInOutcome{}, err
	}
	return c.outcome(), nil
}

func (c *Controller) sessionState() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// Package gateway defines the contract between the session flow controller
// and the hosted identity provider. Implementations translate these calls to
// the provider's API (httpgw) or serve them in process (memgw).
package gateway

import (
	"context"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
)

// RegisterParams carries a sign-up request. Attributes must include "email";
// "phone_number" is accepted and any other key is passed through untouched.
type RegisterParams struct {
	Username   string
	Password   string
	Attributes map[string]string

	// AutoSignIn asks the provider to arm an automatic sign-in once the
	// account is confirmed.
	AutoSignIn bool
}

// RegisterResult reports the outcome of a registration call.
type RegisterResult struct {
	// ConfirmationRequired is true when the account must be confirmed with a
	// delivered code before it can sign in.
	ConfirmationRequired bool

	// CodeDestination is the (masked) destination the confirmation code was
	// sent to, when one was sent.
	CodeDestination string

	// AutoSignInArmed echoes whether the provider accepted the auto sign-in
	// request.
	AutoSignInArmed bool
}

// SignInResult is the provider's answer to any call that can complete an
// authentication: exactly one of Challenge or Material is set.
type SignInResult struct {
	// Challenge is non-nil when the provider demands a second factor.
	Challenge *domain.Challenge

	// Material is non-nil when the provider issued tokens.
	Material *domain.SessionMaterial
}

// Provisioning is the secret material returned when factor setup begins.
type Provisioning struct {
	Factor domain.FactorKind

	// SharedSecret is the base32 TOTP secret; empty for email factors.
	SharedSecret string

	// ProvisioningURI is the otpauth:// URI for QR rendering; empty for
	// email factors.
	ProvisioningURI string

	// CodeDestination is the masked delivery address for email factors.
	CodeDestination string
}

// Gateway is everything the session flow controller needs from the identity
// provider. Every error returned is a *domain.Error: rejections carry the
// provider's message, transport problems are ErrTransportFailure.
type Gateway interface {
	// Register creates an account.
	Register(ctx context.Context, p RegisterParams) (RegisterResult, error)

	// ConfirmRegistration confirms an account with a delivered code.
	ConfirmRegistration(ctx context.Context, username, code string) error

	// PasswordSignIn starts a password authentication.
	PasswordSignIn(ctx context.Context, username, password string) (SignInResult, error)

	// SelectMFAChallenge answers a SelectableMFA challenge with the chosen
	// factor. The returned result narrows the challenge to that factor.
	SelectMFAChallenge(ctx context.Context, username string, kind domain.ChallengeKind, continuation string) (SignInResult, error)

	// RespondToChallenge answers an EmailOTP or SoftwareTokenMFA challenge.
	RespondToChallenge(ctx context.Context, username, code, continuation string) (SignInResult, error)

	// FederatedSignInURL returns the browser handoff URL for redirect-based
	// federated sign-in with the named provider.
	FederatedSignInURL(provider string) (string, error)

	// ResumeFederatedSession fetches the session established by a completed
	// redirect handoff, if any.
	ResumeFederatedSession(ctx context.Context) (SignInResult, error)

	// FederatedTokenExchange trades an externally obtained identity token
	// (native bridge path) for provider session material.
	FederatedTokenExchange(ctx context.Context, provider, idToken string) (SignInResult, error)

	// SignOut invalidates the session behind accessToken; when global is set
	// every session of the principal is invalidated.
	SignOut(ctx context.Context, accessToken string, global bool) error

	// InitiateFactorProvisioning begins MFA factor setup for the
	// authenticated principal.
	InitiateFactorProvisioning(ctx context.Context, accessToken string, factor domain.FactorKind) (Provisioning, error)

	// VerifyFactorProvisioning proves possession of the factor being set up.
	VerifyFactorProvisioning(ctx context.Context, accessToken, code string) error

	// SetPreferredFactor activates a verified factor as the principal's
	// preferred MFA method.
	SetPreferredFactor(ctx context.Context, accessToken string, factor domain.FactorKind) error
}

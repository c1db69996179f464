package memgw

import (
	"context"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// InitiateFactorProvisioning starts MFA setup for the session's principal.
// TOTP setup returns the shared secret and otpauth:// URI; email setup
// "delivers" a code retrievable via DeliveredCode.
func (g *Gateway) InitiateFactorProvisioning(_ context.Context, accessToken string, factor domain.FactorKind) (gateway.Provisioning, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, username, err := g.sessionUserLocked(accessToken)
	if err != nil {
		return gateway.Provisioning{}, err
	}

	switch factor {
	case domain.FactorTOTP:
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      g.opts.Issuer,
			AccountName: u.email,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return gateway.Provisioning{}, domain.Rejection("failed to generate TOTP secret", err)
		}

		u.provisioning = &provisioningState{factor: factor, secret: key.Secret()}
		return gateway.Provisioning{
			Factor:          factor,
			SharedSecret:    key.Secret(),
			ProvisioningURI: key.URL(),
		}, nil

	case domain.FactorEmail:
		code := g.numericCode()
		u.provisioning = &provisioningState{factor: factor, secret: code}
		g.codes[username] = code
		return gateway.Provisioning{
			Factor:          factor,
			CodeDestination: maskEmail(u.email),
		}, nil

	default:
		return gateway.Provisioning{}, domain.Rejection("unsupported factor", nil)
	}
}

// VerifyFactorProvisioning proves possession of the factor under setup and
// enables it for sign-in challenges.
func (g *Gateway) VerifyFactorProvisioning(_ context.Context, accessToken, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, username, err := g.sessionUserLocked(accessToken)
	if err != nil {
		return err
	}
	if u.provisioning == nil {
		return domain.Rejection("no factor setup in progress", nil)
	}

	switch u.provisioning.factor {
	case domain.FactorTOTP:
		if !validateTOTP(code, u.provisioning.secret) {
			return domain.Rejection("invalid TOTP code", nil)
		}
		u.totpSecret = u.provisioning.secret
		u.totpEnabled = true

	case domain.FactorEmail:
		if code == "" || code != u.provisioning.secret {
			return domain.Rejection("invalid verification code", nil)
		}
		u.emailOTPEnabled = true
		delete(g.codes, username)
	}

	u.provisioning = nil
	return nil
}

// SetPreferredFactor activates an enabled factor as the principal's default
// challenge method.
func (g *Gateway) SetPreferredFactor(_ context.Context, accessToken string, factor domain.FactorKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, _, err := g.sessionUserLocked(accessToken)
	if err != nil {
		return err
	}

	switch factor {
	case domain.FactorTOTP:
		if !u.totpEnabled {
			return domain.Rejection("TOTP is not enabled for this account", nil)
		}
	case domain.FactorEmail:
		if !u.emailOTPEnabled {
			return domain.Rejection("email OTP is not enabled for this account", nil)
		}
	default:
		return domain.Rejection("unsupported factor", nil)
	}

	u.hasPreferred = true
	u.preferred = factor
	return nil
}

// sessionUserLocked resolves an access token to its account. Delivered codes
// are keyed by the returned username, same as registration and challenges.
func (g *Gateway) sessionUserLocked(accessToken string) (*user, string, error) {
	s, ok := g.sessions[accessToken]
	if !ok {
		return nil, "", domain.Rejection("access token is invalid or revoked", nil)
	}
	u, ok := g.users[s.username]
	if !ok {
		return nil, "", domain.Rejection("account no longer exists", nil)
	}
	return u, s.username, nil
}

func validateTOTP(code, secret string) bool {
	return secret != "" && totp.Validate(code, secret)
}

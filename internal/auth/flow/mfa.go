package flow

import (
	"context"
	"strings"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
)

// InitiateFactorSetup requests provisioning material for a new MFA factor.
// Valid only while authenticated. Any earlier unverified setup is abandoned.
func (c *Controller) InitiateFactorSetup(ctx context.Context, factor domain.FactorKind) (domain.Enrollment, error) {
	const origin = "initiateFactorSetup"

	if err := c.begin(origin, domain.Authenticated); err != nil {
		return domain.Enrollment{}, c.fail(origin, err)
	}
	defer c.end()

	c.mu.Lock()
	access := c.session.Material.AccessToken
	c.mu.Unlock()

	prov, err := c.gw.InitiateFactorProvisioning(ctx, access, factor)
	if err != nil {
		return domain.Enrollment{}, c.fail(origin, err)
	}

	enrollment := domain.Enrollment{
		Factor:          prov.Factor,
		SharedSecret:    prov.SharedSecret,
		ProvisioningURI: prov.ProvisioningURI,
	}

	c.mu.Lock()
	c.enrollment = &enrollment
	c.mu.Unlock()

	c.record(origin, map[string]any{
		"factor":           factor.String(),
		"code_destination": prov.CodeDestination,
	})
	c.notify(EventFactorSetupStarted)

	return enrollment, nil
}

// VerifyFactorSetup proves possession of the factor being set up. On success
// the factor is activated as the preferred MFA method and the enrollment is
// discarded. A wrong code leaves the enrollment live for another attempt.
func (c *Controller) VerifyFactorSetup(ctx context.Context, code string) error {
	const origin = "verifyFactorSetup"

	if err := c.begin(origin, domain.Authenticated); err != nil {
		return c.fail(origin, err)
	}
	defer c.end()

	c.mu.Lock()
	enrollment := c.enrollment
	access := c.session.Material.AccessToken
	c.mu.Unlock()

	if enrollment == nil || enrollment.Verified {
		return c.fail(origin, domain.InvalidStatef("no factor setup is in progress"))
	}
	if strings.TrimSpace(code) == "" {
		return c.fail(origin, domain.Validationf("verification code is required"))
	}

	if err := c.gw.VerifyFactorProvisioning(ctx, access, code); err != nil {
		return c.fail(origin, err)
	}

	if err := c.gw.SetPreferredFactor(ctx, access, enrollment.Factor); err != nil {
		// Verified but not activated; the enrollment is done either way
		c.mu.Lock()
		c.enrollment = nil
		c.mu.Unlock()
		return c.fail(origin, err)
	}

	c.mu.Lock()
	c.enrollment = nil
	c.mu.Unlock()

	c.record(origin, map[string]any{
		"factor":   enrollment.Factor.String(),
		"verified": true,
	})
	c.notify(EventFactorVerified)
	return nil
}

package domain

// FactorKind identifies an MFA factor a user can enroll.
type FactorKind int

const (
	// FactorTOTP is an authenticator-app software token.
	FactorTOTP FactorKind = iota
	// FactorEmail is an emailed one-time code.
	FactorEmail
)

func (k FactorKind) String() string {
	switch k {
	case FactorTOTP:
		return "totp"
	case FactorEmail:
		return "email"
	default:
		return "unknown"
	}
}

// Enrollment tracks a single factor's setup progress. It exists only between
// setup initiation and successful verification (or abandonment) and is never
// persisted.
type Enrollment struct {
	Factor FactorKind

	// SharedSecret is the provisioning secret, present only until the factor
	// is verified.
	SharedSecret string

	// ProvisioningURI is the otpauth:// URI for QR rendering, TOTP only.
	ProvisioningURI string

	Verified bool
}

package domain

// ChallengeKind is the closed set of second-factor challenges the provider
// can demand. Wire strings are mapped to and from this type at the gateway
// boundary only; nothing above the gateway compares raw strings.
type ChallengeKind int

const (
	// EmailOTP asks for a one-time code delivered to the principal's email.
	EmailOTP ChallengeKind = iota
	// SoftwareTokenMFA asks for a TOTP code from an authenticator app.
	SoftwareTokenMFA
	// SelectableMFA asks the user to pick one of several offered factors
	// before a code is requested.
	SelectableMFA
)

func (k ChallengeKind) String() string {
	switch k {
	case EmailOTP:
		return "email_otp"
	case SoftwareTokenMFA:
		return "software_token_mfa"
	case SelectableMFA:
		return "selectable_mfa"
	default:
		return "unknown"
	}
}

// Challenge describes an outstanding second-factor demand.
type Challenge struct {
	Kind ChallengeKind

	// Choices is the ordered set of factors on offer when Kind is
	// SelectableMFA; empty otherwise.
	Choices []ChallengeKind

	// ContinuationToken is an opaque provider value that must be replayed
	// verbatim on the next challenge-response call. Never inspected or
	// rewritten here.
	ContinuationToken string
}

// Offers reports whether kind is one of the selectable choices.
func (c *Challenge) Offers(kind ChallengeKind) bool {
	for _, choice := range c.Choices {
		if choice == kind {
			return true
		}
	}
	return false
}

package domain

// State is the lifecycle position of an authentication attempt.
type State int

const (
	// Anonymous means no attempt is in flight and no session exists.
	Anonymous State = iota
	// AwaitingConfirmation means a sign-up succeeded but the account must be
	// confirmed before it can sign in.
	AwaitingConfirmation
	// AwaitingChallenge means the provider demanded a second factor before
	// issuing tokens.
	AwaitingChallenge
	// Authenticated means session material has been issued.
	Authenticated
	// Failed means the last sign-in attempt was rejected; credentials are
	// retained so the attempt can be retried.
	Failed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case AwaitingChallenge:
		return "awaiting_challenge"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionMaterial is the token set issued on successful authentication.
type SessionMaterial struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthSession is one authentication attempt in progress or completed.
//
// Two invariants hold after every operation, success or failure:
// PendingChallenge is non-nil iff State == AwaitingChallenge, and Material is
// non-nil iff State == Authenticated.
type AuthSession struct {
	// Principal is the email being authenticated. Immutable once a challenge
	// is outstanding.
	Principal string

	State State

	// PendingChallenge describes the outstanding second-factor demand.
	PendingChallenge *Challenge

	// Material holds the issued tokens.
	Material *SessionMaterial
}

// Valid reports whether the session's state invariants hold.
func (s *AuthSession) Valid() bool {
	if (s.PendingChallenge != nil) != (s.State == AwaitingChallenge) {
		return false
	}
	if (s.Material != nil) != (s.State == Authenticated) {
		return false
	}
	return true
}

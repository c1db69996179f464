// Package memgw is a complete in-process identity provider behind the
// gateway contract. It backs the sandbox's offline mode and the test suite:
// real password hashing, confirmation codes, TOTP and email-OTP challenges
// with continuation tokens and attempt caps, and JWT session issuance.
package memgw

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
	"github.com/dkellersch/authsandbox/pkg/cryptox"
)

// MaxChallengeAttempts caps failed responses per challenge session to slow
// brute forcing, mirroring hosted provider behavior.
const MaxChallengeAttempts = 5

const defaultChallengeTTL = 3 * time.Minute

// Options tune the provider. Zero values get sensible sandbox defaults.
type Options struct {
	Issuer       string
	TokenTTL     time.Duration
	ChallengeTTL time.Duration

	// AuthorizeBaseURL is the base of the redirect-path federated handoff URL.
	AuthorizeBaseURL string
}

// Gateway is the in-memory provider. All state lives for the process only.
type Gateway struct {
	opts       Options
	signingKey []byte

	mu         sync.Mutex
	users      map[string]*user
	challenges map[string]*challengeSession
	sessions   map[string]*session
	codes      map[string]string // last delivered code per principal
	federated  *gateway.SignInResult
}

type user struct {
	email           string
	passwordHash    string
	confirmed       bool
	attributes      map[string]string
	totpSecret      string
	totpEnabled     bool
	emailOTPEnabled bool
	hasPreferred    bool
	preferred       domain.FactorKind
	provisioning    *provisioningState
}

type provisioningState struct {
	factor domain.FactorKind
	secret string // TOTP shared secret or delivered email code
}

type challengeSession struct {
	username  string
	kind      domain.ChallengeKind
	choices   []domain.ChallengeKind
	attempts  int
	expiresAt time.Time
	emailCode string
}

type session struct {
	username string
	issuedAt time.Time
}

// New returns an empty provider with a fresh random signing key.
func New(opts Options) *Gateway {
	if opts.Issuer == "" {
		opts.Issuer = "authsandbox-local"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = defaultChallengeTTL
	}
	if opts.AuthorizeBaseURL == "" {
		opts.AuthorizeBaseURL = "https://local.auth.sandbox"
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("memgw: failed to generate signing key: %v", err))
	}

	return &Gateway{
		opts:       opts,
		signingKey: key,
		users:      make(map[string]*user),
		challenges: make(map[string]*challengeSession),
		sessions:   make(map[string]*session),
		codes:      make(map[string]string),
	}
}

var _ gateway.Gateway = (*Gateway)(nil)

// Register creates an unconfirmed account and "delivers" a confirmation code,
// retrievable via DeliveredCode.
func (g *Gateway) Register(_ context.Context, p gateway.RegisterParams) (gateway.RegisterResult, error) {
	if err := checkPasswordPolicy(p.Password); err != nil {
		return gateway.RegisterResult{}, err
	}

	hash, err := cryptox.HashPassword(p.Password)
	if err != nil {
		return gateway.RegisterResult{}, domain.Rejection("failed to process password", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.users[p.Username]; exists {
		return gateway.RegisterResult{}, domain.Rejection("an account with this email already exists", nil)
	}

	attrs := make(map[string]string, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs[k] = v
	}

	g.users[p.Username] = &user{
		email:        attrs["email"],
		passwordHash: hash,
		attributes:   attrs,
	}
	g.codes[p.Username] = g.numericCode()

	return gateway.RegisterResult{
		ConfirmationRequired: true,
		CodeDestination:      maskEmail(attrs["email"]),
		AutoSignInArmed:      p.AutoSignIn,
	}, nil
}

// ConfirmRegistration confirms an account with the delivered code.
func (g *Gateway) ConfirmRegistration(_ context.Context, username, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, ok := g.users[username]
	if !ok {
		return domain.Rejection("no such account", nil)
	}
	if u.confirmed {
		return domain.Rejection("account is already confirmed", nil)
	}
	if g.codes[username] == "" || g.codes[username] != code {
		return domain.Rejection("invalid or expired confirmation code", nil)
	}

	u.confirmed = true
	delete(g.codes, username)
	return nil
}

// PasswordSignIn verifies the password and either issues tokens or opens a
// challenge session when MFA factors are enabled.
func (g *Gateway) PasswordSignIn(_ context.Context, username, password string) (gateway.SignInResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, ok := g.users[username]
	if !ok {
		return gateway.SignInResult{}, domain.Rejection("incorrect username or password", nil)
	}
	if err := cryptox.VerifyPassword(password, u.passwordHash); err != nil {
		return gateway.SignInResult{}, domain.Rejection("incorrect username or password", nil)
	}
	if !u.confirmed {
		return gateway.SignInResult{}, domain.Rejection("account is not confirmed", nil)
	}

	factors := u.enabledFactors()
	if len(factors) == 0 {
		return g.issueTokensLocked(username)
	}

	return g.openChallengeLocked(username, u, factors)
}

// openChallengeLocked creates a continuation-token-keyed challenge session.
// One enabled factor yields a direct challenge; several yield a selectable
// challenge, preferred factor first.
func (g *Gateway) openChallengeLocked(username string, u *user, factors []domain.FactorKind) (gateway.SignInResult, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return gateway.SignInResult{}, domain.Rejection("failed to open challenge", err)
	}

	cs := &challengeSession{
		username:  username,
		expiresAt: time.Now().Add(g.opts.ChallengeTTL),
	}

	if len(factors) == 1 {
		cs.kind = factorChallengeKind(factors[0])
		if cs.kind == domain.EmailOTP {
			cs.emailCode = g.numericCode()
			g.codes[username] = cs.emailCode
		}
	} else {
		cs.kind = domain.SelectableMFA
		if u.hasPreferred {
			ordered := []domain.FactorKind{u.preferred}
			for _, f := range factors {
				if f != u.preferred {
					ordered = append(ordered, f)
				}
			}
			factors = ordered
		}
		for _, f := range factors {
			cs.choices = append(cs.choices, factorChallengeKind(f))
		}
	}

	g.challenges[token] = cs

	return gateway.SignInResult{
		Challenge: &domain.Challenge{
			Kind:              cs.kind,
			Choices:           append([]domain.ChallengeKind(nil), cs.choices...),
			ContinuationToken: token,
		},
	}, nil
}

// SelectMFAChallenge narrows a selectable challenge to the chosen factor. The
// continuation token stays valid for the follow-up response.
func (g *Gateway) SelectMFAChallenge(_ context.Context, username string, kind domain.ChallengeKind, continuation string) (gateway.SignInResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cs, err := g.challengeLocked(username, continuation)
	if err != nil {
		return gateway.SignInResult{}, err
	}
	if cs.kind != domain.SelectableMFA {
		return gateway.SignInResult{}, domain.Rejection("challenge does not offer a selection", nil)
	}

	offered := false
	for _, c := range cs.choices {
		if c == kind {
			offered = true
			break
		}
	}
	if !offered {
		return gateway.SignInResult{}, domain.Rejection("selected method is not available", nil)
	}

	cs.kind = kind
	cs.choices = nil
	if kind == domain.EmailOTP {
		cs.emailCode = g.numericCode()
		g.codes[username] = cs.emailCode
	}

	return gateway.SignInResult{
		Challenge: &domain.Challenge{
			Kind:              kind,
			ContinuationToken: continuation,
		},
	}, nil
}

// RespondToChallenge checks the code against the challenge session. Failed
// attempts are counted; exceeding MaxChallengeAttempts voids the session.
func (g *Gateway) RespondToChallenge(_ context.Context, username, code, continuation string) (gateway.SignInResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cs, err := g.challengeLocked(username, continuation)
	if err != nil {
		return gateway.SignInResult{}, err
	}

	cs.attempts++
	if cs.attempts > MaxChallengeAttempts {
		delete(g.challenges, continuation)
		return gateway.SignInResult{}, domain.Rejection("too many failed attempts, sign in again", nil)
	}

	u := g.users[username]

	var valid bool
	switch cs.kind {
	case domain.SoftwareTokenMFA:
		valid = validateTOTP(code, u.totpSecret)
	case domain.EmailOTP:
		valid = cs.emailCode != "" && cs.emailCode == code
	default:
		return gateway.SignInResult{}, domain.Rejection("a method must be selected first", nil)
	}

	if !valid {
		return gateway.SignInResult{}, domain.Rejection("invalid code", nil)
	}

	delete(g.challenges, continuation)
	delete(g.codes, username)
	return g.issueTokensLocked(username)
}

// SignOut drops the session behind accessToken; global drops every session
// of the same principal.
func (g *Gateway) SignOut(_ context.Context, accessToken string, global bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[accessToken]
	if !ok {
		return domain.Rejection("access token is invalid or revoked", nil)
	}

	if global {
		for token, other := range g.sessions {
			if other.username == s.username {
				delete(g.sessions, token)
			}
		}
		return nil
	}

	delete(g.sessions, accessToken)
	return nil
}

// challengeLocked resolves a continuation token, enforcing principal match
// and expiry.
func (g *Gateway) challengeLocked(username, continuation string) (*challengeSession, error) {
	cs, ok := g.challenges[continuation]
	if !ok {
		return nil, domain.Rejection("challenge session is unknown or already completed", nil)
	}
	if cs.username != username {
		return nil, domain.Rejection("challenge session does not belong to this principal", nil)
	}
	if time.Now().After(cs.expiresAt) {
		delete(g.challenges, continuation)
		return nil, domain.Rejection("challenge session has expired", nil)
	}
	return cs, nil
}

func (u *user) enabledFactors() []domain.FactorKind {
	var out []domain.FactorKind
	if u.totpEnabled {
		out = append(out, domain.FactorTOTP)
	}
	if u.emailOTPEnabled {
		out = append(out, domain.FactorEmail)
	}
	return out
}

func factorChallengeKind(f domain.FactorKind) domain.ChallengeKind {
	if f == domain.FactorEmail {
		return domain.EmailOTP
	}
	return domain.SoftwareTokenMFA
}

// checkPasswordPolicy applies the sandbox pool policy: at least 8 characters
// with an upper, a lower and a digit.
func checkPasswordPolicy(password string) error {
	if len(password) < 8 {
		return domain.Rejection("password does not satisfy the policy: too short", nil)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return domain.Rejection("password does not satisfy the policy: needs upper, lower and digit", nil)
	}
	return nil
}

// numericCode generates a 6-digit delivery code.
func (g *Gateway) numericCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand failure is unrecoverable in practice
		panic(fmt.Sprintf("memgw: failed to generate code: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// DeliveredCode returns the last code "delivered" to principal. This is the
// sandbox's stand-in for reading your inbox.
func (g *Gateway) DeliveredCode(principal string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.codes[principal]
}

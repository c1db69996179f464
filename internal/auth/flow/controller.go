// Package flow owns the client-side authentication attempt: it serializes
// operations through the session state machine, rejects calls the current
// state does not permit, delegates the real work to the identity gateway and
// records every outcome in the event log.
package flow

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/eventlog"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
)

// Config wires a Controller. Gateway is required; Bridge is nil outside a
// native shell, which selects the redirect path for federated sign-in.
type Config struct {
	Gateway gateway.Gateway
	Bridge  bridge.Bridge
	Log     *eventlog.Log
	Logger  *slog.Logger

	// GlobalSignOut invalidates every session of the principal on sign-out,
	// not just the local one.
	GlobalSignOut bool
}

// Controller drives one authentication attempt at a time. A second
// state-mutating operation dispatched while one is outstanding is rejected
// with an invalid-state error rather than racing the first.
type Controller struct {
	gw            gateway.Gateway
	bridge        bridge.Bridge
	log           *eventlog.Log
	logger        *slog.Logger
	globalSignOut bool

	mu         sync.Mutex
	busy       bool
	session    domain.AuthSession
	secret     string // held in memory only, never logged
	autoSignIn bool
	enrollment *domain.Enrollment

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

// New builds a Controller in the Anonymous state.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := cfg.Log
	if log == nil {
		log = eventlog.New(logger)
	}

	return &Controller{
		gw:            cfg.Gateway,
		bridge:        cfg.Bridge,
		log:           log,
		logger:        logger,
		globalSignOut: cfg.GlobalSignOut,
	}
}

// Log exposes the controller's event log for the diagnostics surface.
func (c *Controller) Log() *eventlog.Log { return c.log }

// Session returns a snapshot of the current attempt.
func (c *Controller) Session() domain.AuthSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// Enrollment returns a snapshot of the live factor setup, or nil.
func (c *Controller) Enrollment() *domain.Enrollment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enrollment == nil {
		return nil
	}
	e := *c.enrollment
	return &e
}

// begin acquires the operation slot, enforcing the re-entrancy guard and the
// state precondition. Callers must pair a successful begin with end.
func (c *Controller) begin(op string, allowed ...domain.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return domain.InvalidStatef("%s rejected: another operation is outstanding", op)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, c.session.State) {
		return domain.InvalidStatef("%s not permitted in state %s", op, c.session.State)
	}

	c.busy = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// record appends an operation outcome to the event log.
func (c *Controller) record(origin string, value any) {
	c.log.Append(origin, value)
}

// fail records err under origin and returns it unchanged. Every failure
// crossing the controller boundary goes through here; nothing is swallowed.
func (c *Controller) fail(origin string, err error) error {
	kind, _ := domain.KindOf(err)
	c.record(origin, map[string]any{
		"error":   kind.String(),
		"message": err.Error(),
	})
	c.logger.Warn("operation_failed", "origin", origin, "kind", kind.String(), "error", err)
	return err
}

// SignUpOutcome reports what the provider did with a registration.
type SignUpOutcome struct {
	ConfirmationRequired bool   `json:"confirmation_required"`
	CodeDestination      string `json:"code_destination,omitempty"`
	State                string `json:"state"`
}

// SignUp registers principal with the provider. Valid only from Anonymous.
// When the provider requires confirmation the attempt moves to
// AwaitingConfirmation and an armed auto sign-in completes after ConfirmSignUp.
func (c *Controller) SignUp(ctx context.Context, principal, secret string, attributes map[string]string) (SignUpOutcome, error) {
	const origin = "signUp"

	if err := c.begin(origin, domain.Anonymous); err != nil {
		return SignUpOutcome{}, c.fail(origin, err)
	}
	defer c.end()

	if err := validateCredentials(principal, secret); err != nil {
		return SignUpOutcome{}, c.fail(origin, err)
	}
	if attributes["email"] == "" {
		return SignUpOutcome{}, c.fail(origin, domain.Validationf("attributes must include email"))
	}

	res, err := c.gw.Register(ctx, gateway.RegisterParams{
		Username:   principal,
		Password:   secret,
		Attributes: attributes,
		AutoSignIn: true,
	})
	if err != nil {
		// State remains Anonymous
		return SignUpOutcome{}, c.fail(origin, err)
	}

	c.mu.Lock()
	c.session.Principal = principal
	c.secret = secret
	c.autoSignIn = res.AutoSignInArmed
	if res.ConfirmationRequired {
		c.session.State = domain.AwaitingConfirmation
	}
	c.mu.Unlock()

	outcome := SignUpOutcome{
		ConfirmationRequired: res.ConfirmationRequired,
		CodeDestination:      res.CodeDestination,
	}

	if res.ConfirmationRequired {
		outcome.State = domain.AwaitingConfirmation.String()
		c.record(origin, outcome)
		c.notify(EventAwaitingConfirmation)
		return outcome, nil
	}

	// No confirmation needed; an armed auto sign-in completes immediately.
	if res.AutoSignInArmed {
		signIn, err := c.gw.PasswordSignIn(ctx, principal, secret)
		if err != nil {
			c.setFailed()
			return SignUpOutcome{}, c.fail(origin, err)
		}
		if err := c.foldSignIn(origin, signIn); err != nil {
			return SignUpOutcome{}, err
		}
	}

	outcome.State = c.Session().State.String()
	c.record(origin, outcome)
	return outcome, nil
}

// ConfirmSignUp submits the delivered confirmation code. The principal must
// match the pending sign-up. On success an armed auto sign-in runs with the
// retained credentials; otherwise the attempt returns to Anonymous, ready to
// sign in.
func (c *Controller) ConfirmSignUp(ctx context.Context, principal, code string) error {
	const origin = "confirmSignUp"

	if err := c.begin(origin, domain.AwaitingConfirmation); err != nil {
		return c.fail(origin, err)
	}
	defer c.end()

	c.mu.Lock()
	pendingPrincipal := c.session.Principal
	c.mu.Unlock()

	if strings.TrimSpace(code) == "" {
		return c.fail(origin, domain.Validationf("confirmation code is required"))
	}
	if principal != pendingPrincipal {
		return c.fail(origin, domain.Validationf("principal does not match the pending sign-up"))
	}

	if err := c.gw.ConfirmRegistration(ctx, principal, code); err != nil {
		// Wrong or expired code leaves the attempt where it was
		return c.fail(origin, err)
	}

	c.mu.Lock()
	c.session.State = domain.Anonymous
	auto := c.autoSignIn && c.secret != ""
	secret := c.secret
	c.mu.Unlock()

	c.record(origin, map[string]any{"confirmed": true})
	c.notify(EventConfirmed)

	if auto {
		res, err := c.gw.PasswordSignIn(ctx, principal, secret)
		if err != nil {
			c.setFailed()
			return c.fail(origin, err)
		}
		return c.foldSignIn(origin, res)
	}

	return nil
}

// SignInOutcome reports where a sign-in landed.
type SignInOutcome struct {
	State     string            `json:"state"`
	Challenge *domain.Challenge `json:"challenge,omitempty"`
}

// SignIn starts a password authentication. Valid from Anonymous and Failed;
// a failed attempt retains the credentials so the caller may retry without
// re-entering them.
func (c *Controller) SignIn(ctx context.Context, principal, secret string) (SignInOutcome, error) {
	const origin = "signIn"

	if err := c.begin(origin, domain.Anonymous, domain.Failed); err != nil {
		return SignInOutcome{}, c.fail(origin, err)
	}
	defer c.end()

	if err := validateCredentials(principal, secret); err != nil {
		return SignInOutcome{}, c.fail(origin, err)
	}

	c.mu.Lock()
	c.session.Principal = principal
	c.secret = secret
	c.mu.Unlock()

	res, err := c.gw.PasswordSignIn(ctx, principal, secret)
	if err != nil {
		c.setFailed()
		return SignInOutcome{}, c.fail(origin, err)
	}

	if err := c.foldSignIn(origin, res); err != nil {
		return SignInOutcome{}, err
	}
	return c.outcome(), nil
}

// SelectChallenge answers a choose-your-factor challenge. Valid only while a
// SelectableMFA challenge is pending and only for one of its offered kinds.
func (c *Controller) SelectChallenge(ctx context.Context, kind domain.ChallengeKind) error {
	const origin = "selectChallenge"

	if err := c.begin(origin, domain.AwaitingChallenge); err != nil {
		return c.fail(origin, err)
	}
	defer c.end()

	c.mu.Lock()
	pending := c.session.PendingChallenge
	principal := c.session.Principal
	c.mu.Unlock()

	if pending.Kind != domain.SelectableMFA {
		return c.fail(origin, domain.InvalidStatef("pending challenge %s offers no selection", pending.Kind))
	}
	if !pending.Offers(kind) {
		return c.fail(origin, domain.Validationf("factor %s is not among the offered choices", kind))
	}

	res, err := c.gw.SelectMFAChallenge(ctx, principal, kind, pending.ContinuationToken)
	if err != nil {
		// Selection failure leaves the selectable challenge pending
		return c.fail(origin, err)
	}

	if err := c.foldSignIn(origin, res); err != nil {
		return err
	}
	c.notify(EventChallengeSelected)
	return nil
}

// RespondToChallenge submits the second-factor code. A wrong code leaves the
// challenge pending with its continuation token untouched; recovery from
// repeated failure is a fresh SignIn.
func (c *Controller) RespondToChallenge(ctx context.Context, code string) (SignInOutcome, error) {
	const origin = "respondToChallenge"

	if err := c.begin(origin, domain.AwaitingChallenge); err != nil {
		return SignInOutcome{}, c.fail(origin, err)
	}
	defer c.end()

	c.mu.Lock()
	pending := c.session.PendingChallenge
	principal := c.session.Principal
	c.mu.Unlock()

	if pending.Kind == domain.SelectableMFA {
		return SignInOutcome{}, c.fail(origin, domain.InvalidStatef("a factor must be selected before responding"))
	}
	if strings.TrimSpace(code) == "" {
		return SignInOutcome{}, c.fail(origin, domain.Validationf("challenge code is required"))
	}

	res, err := c.gw.RespondToChallenge(ctx, principal, code, pending.ContinuationToken)
	if err != nil {
		// The continuation token may or may not still be valid provider-side;
		// it is surfaced untouched either way.
		return SignInOutcome{}, c.fail(origin, err)
	}

	if err := c.foldSignIn(origin, res); err != nil {
		return SignInOutcome{}, err
	}
	return c.outcome(), nil
}

// SignOut invalidates the session and resets to Anonymous. Valid from any
// state and idempotent: signing out while Anonymous is a no-op. Local state
// is reset even when the provider call fails.
func (c *Controller) SignOut(ctx context.Context) error {
	const origin = "signOut"

	if err := c.begin(origin); err != nil {
		return c.fail(origin, err)
	}
	defer c.end()

	c.mu.Lock()
	material := c.session.Material
	c.mu.Unlock()

	var gwErr error
	if material != nil {
		gwErr = c.gw.SignOut(ctx, material.AccessToken, c.globalSignOut)
	}

	c.mu.Lock()
	c.session = domain.AuthSession{}
	c.secret = ""
	c.autoSignIn = false
	c.enrollment = nil
	c.mu.Unlock()

	if gwErr != nil {
		// Session reset happened regardless; the provider's answer is still
		// surfaced.
		c.notify(EventSignedOut)
		return c.fail(origin, gwErr)
	}

	c.record(origin, map[string]any{"signed_out": material != nil})
	c.notify(EventSignedOut)
	return nil
}

// foldSignIn applies a gateway sign-in result to the state machine and
// records the outcome. The caller holds the operation slot.
func (c *Controller) foldSignIn(origin string, res gateway.SignInResult) error {
	switch {
	case res.Material != nil:
		c.mu.Lock()
		c.session.State = domain.Authenticated
		c.session.Material = res.Material
		c.session.PendingChallenge = nil
		c.secret = ""
		c.autoSignIn = false
		c.mu.Unlock()

		c.record(origin, map[string]any{"state": domain.Authenticated.String()})
		c.notify(EventSignedIn)
		return nil

	case res.Challenge != nil:
		c.mu.Lock()
		c.session.State = domain.AwaitingChallenge
		c.session.PendingChallenge = res.Challenge
		c.session.Material = nil
		c.mu.Unlock()

		c.record(origin, map[string]any{
			"state":     domain.AwaitingChallenge.String(),
			"challenge": res.Challenge.Kind.String(),
		})
		c.notify(EventChallengeRequired)
		return nil

	default:
		c.setFailed()
		return c.fail(origin, domain.Rejection("provider returned neither tokens nor a challenge", nil))
	}
}

// setFailed moves the attempt to Failed, clearing challenge and session
// material so the state invariants hold. Credentials are retained for retry.
func (c *Controller) setFailed() {
	c.mu.Lock()
	c.session.State = domain.Failed
	c.session.PendingChallenge = nil
	c.session.Material = nil
	c.mu.Unlock()
}

func (c *Controller) outcome() SignInOutcome {
	s := c.Session()
	return SignInOutcome{State: s.State.String(), Challenge: s.PendingChallenge}
}

func validateCredentials(principal, secret string) error {
	if strings.TrimSpace(principal) == "" {
		return domain.Validationf("principal is required")
	}
	if !strings.Contains(principal, "@") {
		return domain.Validationf("principal must be an email address")
	}
	if secret == "" {
		return domain.Validationf("password is required")
	}
	return nil
}

func copySession(s domain.AuthSession) domain.AuthSession {
	out := s
	if s.PendingChallenge != nil {
		ch := *s.PendingChallenge
		ch.Choices = slices.Clone(s.PendingChallenge.Choices)
		out.PendingChallenge = &ch
	}
	if s.Material != nil {
		m := *s.Material
		out.Material = &m
	}
	return out
}

package flow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/flow"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
	"github.com/dkellersch/authsandbox/internal/auth/gateway/memgw"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "a@x.com"
	testPassword = "Secret1!"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(t *testing.T, cfg flow.Config) *flow.Controller {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return flow.New(cfg)
}

// requireInvariants asserts the session state invariants that must hold after
// every operation, success or failure.
func requireInvariants(t *testing.T, c *flow.Controller) {
	t.Helper()
	s := c.Session()
	require.True(t, s.Valid(), "state %s with challenge=%v material=%v", s.State, s.PendingChallenge, s.Material)
}

// fakeGateway scripts provider behavior per method. Unset methods reject.
type fakeGateway struct {
	register       func(ctx context.Context, p gateway.RegisterParams) (gateway.RegisterResult, error)
	confirm        func(ctx context.Context, username, code string) error
	passwordSignIn func(ctx context.Context, username, password string) (gateway.SignInResult, error)
	selectMFA      func(ctx context.Context, username string, kind domain.ChallengeKind, continuation string) (gateway.SignInResult, error)
	respond        func(ctx context.Context, username, code, continuation string) (gateway.SignInResult, error)
	tokenExchange  func(ctx context.Context, provider, idToken string) (gateway.SignInResult, error)
	signOut        func(ctx context.Context, accessToken string, global bool) error

	signOutCalls int
}

func (f *fakeGateway) Register(ctx context.Context, p gateway.RegisterParams) (gateway.RegisterResult, error) {
	if f.register == nil {
		return gateway.RegisterResult{}, domain.Rejection("register not scripted", nil)
	}
	return f.register(ctx, p)
}

func (f *fakeGateway) ConfirmRegistration(ctx context.Context, username, code string) error {
	if f.confirm == nil {
		return domain.Rejection("confirm not scripted", nil)
	}
	return f.confirm(ctx, username, code)
}

func (f *fakeGateway) PasswordSignIn(ctx context.Context, username, password string) (gateway.SignInResult, error) {
	if f.passwordSignIn == nil {
		return gateway.SignInResult{}, domain.Rejection("sign-in not scripted", nil)
	}
	return f.passwordSignIn(ctx, username, password)
}

func (f *fakeGateway) SelectMFAChallenge(ctx context.Context, username string, kind domain.ChallengeKind, continuation string) (gateway.SignInResult, error) {
	if f.selectMFA == nil {
		return gateway.SignInResult{}, domain.Rejection("select not scripted", nil)
	}
	return f.selectMFA(ctx, username, kind, continuation)
}

func (f *fakeGateway) RespondToChallenge(ctx context.Context, username, code, continuation string) (gateway.SignInResult, error) {
	if f.respond == nil {
		return gateway.SignInResult{}, domain.Rejection("respond not scripted", nil)
	}
	return f.respond(ctx, username, code, continuation)
}

func (f *fakeGateway) FederatedSignInURL(provider string) (string, error) {
	return "https://idp.example.com/oauth2/authorize?identity_provider=" + provider, nil
}

func (f *fakeGateway) ResumeFederatedSession(context.Context) (gateway.SignInResult, error) {
	return gateway.SignInResult{}, domain.Rejection("no federated sign-in has completed", nil)
}

func (f *fakeGateway) FederatedTokenExchange(ctx context.Context, provider, idToken string) (gateway.SignInResult, error) {
	if f.tokenExchange == nil {
		return gateway.SignInResult{}, domain.Rejection("exchange not scripted", nil)
	}
	return f.tokenExchange(ctx, provider, idToken)
}

func (f *fakeGateway) SignOut(ctx context.Context, accessToken string, global bool) error {
	f.signOutCalls++
	if f.signOut == nil {
		return nil
	}
	return f.signOut(ctx, accessToken, global)
}

func (f *fakeGateway) InitiateFactorProvisioning(context.Context, string, domain.FactorKind) (gateway.Provisioning, error) {
	return gateway.Provisioning{}, domain.Rejection("provisioning not scripted", nil)
}

func (f *fakeGateway) VerifyFactorProvisioning(context.Context, string, string) error {
	return domain.Rejection("verify not scripted", nil)
}

func (f *fakeGateway) SetPreferredFactor(context.Context, string, domain.FactorKind) error {
	return domain.Rejection("preference not scripted", nil)
}

func tokens() gateway.SignInResult {
	return gateway.SignInResult{Material: &domain.SessionMaterial{
		AccessToken:  "at",
		IDToken:      "it",
		RefreshToken: "rt",
	}}
}

func TestSignUpConfirmAutoSignIn(t *testing.T) {
	t.Parallel()

	gw := memgw.New(memgw.Options{})
	c := newController(t, flow.Config{Gateway: gw})

	var events []string
	c.Subscribe(func(ev flow.Event) { events = append(events, ev.Name) })

	out, err := c.SignUp(context.Background(), testEmail, testPassword, map[string]string{"email": testEmail})
	require.NoError(t, err)
	require.True(t, out.ConfirmationRequired)
	require.Equal(t, "a***@x.com", out.CodeDestination)
	require.Equal(t, domain.AwaitingConfirmation, c.Session().State)
	requireInvariants(t, c)

	// Wrong code leaves the attempt pending.
	err = c.ConfirmSignUp(context.Background(), testEmail, "000000x")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrRejectionSentinel)
	require.Equal(t, domain.AwaitingConfirmation, c.Session().State)
	requireInvariants(t, c)

	// The delivered code confirms and the armed auto sign-in completes.
	require.NoError(t, c.ConfirmSignUp(context.Background(), testEmail, gw.DeliveredCode(testEmail)))
	require.Equal(t, domain.Authenticated, c.Session().State)
	require.NotNil(t, c.Session().Material)
	requireInvariants(t, c)

	require.Equal(t, []string{
		flow.EventAwaitingConfirmation,
		flow.EventConfirmed,
		flow.EventSignedIn,
	}, events)
}

func TestSignUpValidation(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	c := newController(t, flow.Config{Gateway: gw})

	tests := []struct {
		name       string
		principal  string
		password   string
		attributes map[string]string
	}{
		{"missing principal", "", testPassword, map[string]string{"email": testEmail}},
		{"principal not an email", "bob", testPassword, map[string]string{"email": testEmail}},
		{"missing password", testEmail, "", map[string]string{"email": testEmail}},
		{"missing email attribute", testEmail, testPassword, map[string]string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.SignUp(context.Background(), tc.principal, tc.password, tc.attributes)
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrValidationSentinel)
			require.Equal(t, domain.Anonymous, c.Session().State)
			requireInvariants(t, c)
		})
	}

	// Each rejected attempt is still recorded.
	require.Equal(t, len(tests), c.Log().Len())
}

func TestConfirmSignUpPrincipalMismatch(t *testing.T) {
	t.Parallel()

	gw := memgw.New(memgw.Options{})
	c := newController(t, flow.Config{Gateway: gw})

	_, err := c.SignUp(context.Background(), testEmail, testPassword, map[string]string{"email": testEmail})
	require.NoError(t, err)

	err = c.ConfirmSignUp(context.Background(), "other@x.com", "123456")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrValidationSentinel)
	require.Equal(t, domain.AwaitingConfirmation, c.Session().State)
}

func TestSignInTOTPChallenge(t *testing.T) {
	t.Parallel()

	gw := memgw.New(memgw.Options{})
	c := newController(t, flow.Config{Gateway: gw})

	// Establish an account with a verified TOTP factor.
	_, err := c.SignUp(context.Background(), testEmail, testPassword, map[string]string{"email": testEmail})
	require.NoError(t, err)
	require.NoError(t, c.ConfirmSignUp(context.Background(), testEmail, gw.DeliveredCode(testEmail)))
	require.Equal(t, domain.Authenticated, c.Session().State)

	enrollment, err := c.InitiateFactorSetup(context.Background(), domain.FactorTOTP)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.SharedSecret)
	require.Contains(t, enrollment.ProvisioningURI, "otpauth://")

	code, err := totp.GenerateCode(enrollment.SharedSecret, time.Now())
	require.NoError(t, err)
	require.NoError(t, c.VerifyFactorSetup(context.Background(), code))
	require.Nil(t, c.Enrollment())

	require.NoError(t, c.SignOut(context.Background()))
	require.Equal(t, domain.Anonymous, c.Session().State)

	// Fresh sign-in now demands the second factor.
	out, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, domain.AwaitingChallenge.String(), out.State)
	require.NotNil(t, out.Challenge)
	require.Equal(t, domain.SoftwareTokenMFA, out.Challenge.Kind)
	requireInvariants(t, c)

	// A wrong code leaves the challenge pending with its token untouched.
	token := out.Challenge.ContinuationToken
	_, err = c.RespondToChallenge(context.Background(), "000000")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrRejectionSentinel)
	s := c.Session()
	require.Equal(t, domain.AwaitingChallenge, s.State)
	require.Equal(t, token, s.PendingChallenge.ContinuationToken)
	requireInvariants(t, c)

	code, err = totp.GenerateCode(enrollment.SharedSecret, time.Now())
	require.NoError(t, err)
	final, err := c.RespondToChallenge(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, domain.Authenticated.String(), final.State)
	require.NotNil(t, c.Session().Material)
	requireInvariants(t, c)
}

func TestSelectableChallenge(t *testing.T) {
	t.Parallel()

	gw := memgw.New(memgw.Options{})
	c := newController(t, flow.Config{Gateway: gw})

	_, err := c.SignUp(context.Background(), testEmail, testPassword, map[string]string{"email": testEmail})
	require.NoError(t, err)
	require.NoError(t, c.ConfirmSignUp(context.Background(), testEmail, gw.DeliveredCode(testEmail)))

	// Enable both factors so sign-in offers a selection.
	enrollment, err := c.InitiateFactorSetup(context.Background(), domain.FactorTOTP)
	require.NoError(t, err)
	code, err := totp.GenerateCode(enrollment.SharedSecret, time.Now())
	require.NoError(t, err)
	require.NoError(t, c.VerifyFactorSetup(context.Background(), code))

	_, err = c.InitiateFactorSetup(context.Background(), domain.FactorEmail)
	require.NoError(t, err)
	require.NoError(t, c.VerifyFactorSetup(context.Background(), gw.DeliveredCode(testEmail)))

	require.NoError(t, c.SignOut(context.Background()))

	out, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NotNil(t, out.Challenge)
	require.Equal(t, domain.SelectableMFA, out.Challenge.Kind)
	require.Contains(t, out.Challenge.Choices, domain.EmailOTP)
	require.Contains(t, out.Challenge.Choices, domain.SoftwareTokenMFA)

	// Responding before selecting is rejected.
	_, err = c.RespondToChallenge(context.Background(), "123456")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrStateSentinel)

	require.NoError(t, c.SelectChallenge(context.Background(), domain.EmailOTP))
	s := c.Session()
	require.Equal(t, domain.EmailOTP, s.PendingChallenge.Kind)
	require.Equal(t, out.Challenge.ContinuationToken, s.PendingChallenge.ContinuationToken)
	requireInvariants(t, c)

	final, err := c.RespondToChallenge(context.Background(), gw.DeliveredCode(testEmail))
	require.NoError(t, err)
	require.Equal(t, domain.Authenticated.String(), final.State)
}

func TestSelectChallengeGuards(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			return gateway.SignInResult{Challenge: &domain.Challenge{
				Kind:              domain.SelectableMFA,
				Choices:           []domain.ChallengeKind{domain.SoftwareTokenMFA},
				ContinuationToken: "cont-1",
			}}, nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	// No challenge pending yet.
	err := c.SelectChallenge(context.Background(), domain.EmailOTP)
	require.ErrorIs(t, err, domain.ErrStateSentinel)

	_, err = c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	// EmailOTP was not among the offered choices.
	err = c.SelectChallenge(context.Background(), domain.EmailOTP)
	require.ErrorIs(t, err, domain.ErrValidationSentinel)
	require.Equal(t, domain.AwaitingChallenge, c.Session().State)
	requireInvariants(t, c)
}

func TestSignInFailureRetainsRetry(t *testing.T) {
	t.Parallel()

	rejected := true
	gw := &fakeGateway{
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			if rejected {
				return gateway.SignInResult{}, domain.Rejection("incorrect username or password", nil)
			}
			return tokens(), nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	_, err := c.SignIn(context.Background(), testEmail, "wrong")
	require.Error(t, err)
	require.Equal(t, domain.Failed, c.Session().State)
	requireInvariants(t, c)

	// Retry from Failed is permitted.
	rejected = false
	out, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, domain.Authenticated.String(), out.State)
}

func TestSignInEmptyProviderResponse(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			return gateway.SignInResult{}, nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	_, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrRejectionSentinel)
	require.Equal(t, domain.Failed, c.Session().State)
	requireInvariants(t, c)
}

func TestSignOut(t *testing.T) {
	t.Parallel()

	t.Run("idempotent while anonymous", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{}
		c := newController(t, flow.Config{Gateway: gw})

		require.NoError(t, c.SignOut(context.Background()))
		require.NoError(t, c.SignOut(context.Background()))
		require.Zero(t, gw.signOutCalls)
		require.Equal(t, domain.Anonymous, c.Session().State)
	})

	t.Run("resets local state on provider error", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{
			passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
				return tokens(), nil
			},
			signOut: func(context.Context, string, bool) error {
				return domain.Transport("identity provider unreachable", nil)
			},
		}
		c := newController(t, flow.Config{Gateway: gw})

		_, err := c.SignIn(context.Background(), testEmail, testPassword)
		require.NoError(t, err)

		err = c.SignOut(context.Background())
		require.Error(t, err)
		require.ErrorIs(t, err, domain.ErrTransportSentinel)
		require.Equal(t, domain.Anonymous, c.Session().State)
		require.Nil(t, c.Session().Material)
		requireInvariants(t, c)
	})
}

func TestReentrancyGuard(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			close(entered)
			<-release
			return tokens(), nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	done := make(chan error, 1)
	go func() {
		_, err := c.SignIn(context.Background(), testEmail, testPassword)
		done <- err
	}()

	<-entered

	// A second operation dispatched while the first is outstanding is
	// rejected, not queued.
	_, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrStateSentinel)

	err = c.SignOut(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrStateSentinel)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, domain.Authenticated, c.Session().State)
}

func TestFederatedViaBridgeEmptyResponse(t *testing.T) {
	t.Parallel()

	// A host that swallows the request models the silent native shell.
	pipe := bridge.NewPipe(bridge.Host{
		FederatedToken: func(context.Context, string) (*bridge.FederatedToken, error) {
			return nil, nil
		},
	})

	gw := &fakeGateway{}
	c := newController(t, flow.Config{Gateway: gw, Bridge: pipe})

	var events []string
	c.Subscribe(func(ev flow.Event) { events = append(events, ev.Name) })

	_, err := c.FederatedSignIn(context.Background(), "Google")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrTransportSentinel)
	require.ErrorIs(t, err, bridge.ErrEmptyResponse)

	// The attempt is untouched; a retry or the redirect path remain open.
	require.Equal(t, domain.Anonymous, c.Session().State)
	requireInvariants(t, c)
	require.Equal(t, []string{flow.EventRedirectFailed}, events)

	entries := c.Log().Entries()
	require.Len(t, entries, 1)
	value, ok := entries[0].Value.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "transport_failure", value["error"])
}

func TestFederatedViaBridge(t *testing.T) {
	t.Parallel()

	pipe := bridge.NewPipe(bridge.Host{
		FederatedToken: func(_ context.Context, provider string) (*bridge.FederatedToken, error) {
			return &bridge.FederatedToken{IDToken: "external-id-token"}, nil
		},
	})

	gw := &fakeGateway{
		tokenExchange: func(_ context.Context, provider, idToken string) (gateway.SignInResult, error) {
			require.Equal(t, "Google", provider)
			require.Equal(t, "external-id-token", idToken)
			return tokens(), nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw, Bridge: pipe})

	out, err := c.FederatedSignIn(context.Background(), "Google")
	require.NoError(t, err)
	require.Empty(t, out.RedirectURL)
	require.Equal(t, domain.Authenticated.String(), out.State)
	requireInvariants(t, c)
}

func TestFederatedRedirectPath(t *testing.T) {
	t.Parallel()

	gw := memgw.New(memgw.Options{AuthorizeBaseURL: "https://local.auth.sandbox"})
	c := newController(t, flow.Config{Gateway: gw})

	out, err := c.FederatedSignIn(context.Background(), "Google")
	require.NoError(t, err)
	require.Contains(t, out.RedirectURL, "identity_provider=Google")
	require.Equal(t, domain.Anonymous, c.Session().State)

	// Nothing to resume until the handoff completes.
	_, err = c.ResumeFederated(context.Background())
	require.Error(t, err)
	require.Equal(t, domain.Failed, c.Session().State)

	require.NoError(t, gw.CompleteRedirect(testEmail))
	res, err := c.ResumeFederated(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Authenticated.String(), res.State)
	requireInvariants(t, c)
}

func TestFactorSetupGuards(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			return tokens(), nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	_, err := c.InitiateFactorSetup(context.Background(), domain.FactorTOTP)
	require.ErrorIs(t, err, domain.ErrStateSentinel)

	_, err = c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	err = c.VerifyFactorSetup(context.Background(), "123456")
	require.ErrorIs(t, err, domain.ErrStateSentinel)
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			return tokens(), nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	var order []string
	unsubA := c.Subscribe(func(ev flow.Event) { order = append(order, "a:"+ev.Name) })
	c.Subscribe(func(ev flow.Event) { order = append(order, "b:"+ev.Name) })

	_, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, []string{"a:" + flow.EventSignedIn, "b:" + flow.EventSignedIn}, order)

	// Unsubscribed handlers stop receiving; the rest keep their order.
	unsubA()
	order = nil
	require.NoError(t, c.SignOut(context.Background()))
	require.Equal(t, []string{"b:" + flow.EventSignedOut}, order)
}

func TestConfirmWithoutAutoSignIn(t *testing.T) {
	t.Parallel()

	signInCalls := 0
	gw := &fakeGateway{
		register: func(context.Context, gateway.RegisterParams) (gateway.RegisterResult, error) {
			// The provider accepted the account but did not arm auto sign-in.
			return gateway.RegisterResult{
				ConfirmationRequired: true,
				CodeDestination:      "a***@x.com",
				AutoSignInArmed:      false,
			}, nil
		},
		confirm: func(context.Context, string, string) error {
			return nil
		},
		passwordSignIn: func(context.Context, string, string) (gateway.SignInResult, error) {
			signInCalls++
			return tokens(), nil
		},
	}
	c := newController(t, flow.Config{Gateway: gw})

	var events []string
	c.Subscribe(func(ev flow.Event) { events = append(events, ev.Name) })

	_, err := c.SignUp(context.Background(), testEmail, testPassword, map[string]string{"email": testEmail})
	require.NoError(t, err)
	require.Equal(t, domain.AwaitingConfirmation, c.Session().State)

	// Confirmation lands back in Anonymous, ready for an explicit sign-in;
	// the retained credentials are not replayed.
	require.NoError(t, c.ConfirmSignUp(context.Background(), testEmail, "123456"))
	require.Equal(t, domain.Anonymous, c.Session().State)
	require.Zero(t, signInCalls)
	requireInvariants(t, c)
	require.Equal(t, []string{flow.EventAwaitingConfirmation, flow.EventConfirmed}, events)

	out, err := c.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, domain.Authenticated.String(), out.State)
	require.Equal(t, 1, signInCalls)
}

package httpgw

import (
	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
)

type signUpRequest struct {
	Username   string            `json:"username"`
	Password   string            `json:"password"`
	Attributes map[string]string `json:"user_attributes"`
	AutoSignIn bool              `json:"auto_sign_in"`
}

type signUpResponse struct {
	UserConfirmed   bool   `json:"user_confirmed"`
	CodeDestination string `json:"code_delivery_destination"`
	AutoSignIn      bool   `json:"auto_sign_in"`
}

type confirmRequest struct {
	Username string `json:"username"`
	Code     string `json:"confirmation_code"`
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type selectChallengeRequest struct {
	Username      string `json:"username"`
	ChallengeName string `json:"challenge_name"`
	Session       string `json:"session"`
}

type respondRequest struct {
	Username string `json:"username"`
	Code     string `json:"challenge_response"`
	Session  string `json:"session"`
}

type tokenExchangeRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

type signOutRequest struct {
	Global bool `json:"global"`
}

type provisionRequest struct {
	Factor string `json:"factor"`
}

type provisionResponse struct {
	SecretCode      string `json:"secret_code"`
	ProvisioningURI string `json:"provisioning_uri"`
	CodeDestination string `json:"code_delivery_destination"`
}

type verifyFactorRequest struct {
	Code string `json:"code"`
}

type preferenceRequest struct {
	Factor string `json:"factor"`
}

// signInResponse is the provider's answer to every authentication-completing
// call: either tokens or a challenge descriptor, never both.
type signInResponse struct {
	ChallengeName       string            `json:"challenge_name,omitempty"`
	Session             string            `json:"session,omitempty"`
	ChallengeParameters map[string]string `json:"challenge_parameters,omitempty"`
	AvailableChallenges []string          `json:"available_challenges,omitempty"`

	AuthenticationResult *struct {
		AccessToken  string `json:"access_token"`
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"authentication_result,omitempty"`
}

// toSignInResult maps the wire response to domain types. Unknown challenge
// names are surfaced as rejections so the state machine never holds a kind
// outside the closed set.
func (r *signInResponse) toSignInResult() (gateway.SignInResult, error) {
	if r.AuthenticationResult != nil {
		return gateway.SignInResult{
			Material: &domain.SessionMaterial{
				AccessToken:  r.AuthenticationResult.AccessToken,
				IDToken:      r.AuthenticationResult.IDToken,
				RefreshToken: r.AuthenticationResult.RefreshToken,
			},
		}, nil
	}

	if r.ChallengeName == "" {
		return gateway.SignInResult{}, domain.Rejection("provider response carried neither tokens nor a challenge", nil)
	}

	kind, err := gateway.ChallengeKindFromWire(r.ChallengeName)
	if err != nil {
		return gateway.SignInResult{}, domain.Rejection("provider demanded an unsupported challenge", err)
	}

	challenge := &domain.Challenge{
		Kind:              kind,
		ContinuationToken: r.Session,
	}

	for _, name := range r.AvailableChallenges {
		choice, err := gateway.ChallengeKindFromWire(name)
		if err != nil {
			return gateway.SignInResult{}, domain.Rejection("provider offered an unsupported challenge choice", err)
		}
		challenge.Choices = append(challenge.Choices, choice)
	}

	return gateway.SignInResult{Challenge: challenge}, nil
}

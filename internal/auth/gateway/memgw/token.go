package memgw

import (
	"time"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
	"github.com/dkellersch/authsandbox/pkg/cryptox"
	"github.com/dkellersch/authsandbox/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

const tokenAudience = "authsandbox"

// issueTokensLocked mints the session material for username and tracks the
// session for sign-out and factor provisioning. Caller holds g.mu.
func (g *Gateway) issueTokensLocked(username string) (gateway.SignInResult, error) {
	u := g.users[username]
	now := time.Now()
	sid := idx.New().String()

	access, err := g.signToken(jwt.MapClaims{
		"sub":       username,
		"iss":       g.opts.Issuer,
		"aud":       tokenAudience,
		"token_use": "access",
		"sid":       sid,
		"iat":       now.Unix(),
		"exp":       now.Add(g.opts.TokenTTL).Unix(),
	})
	if err != nil {
		return gateway.SignInResult{}, domain.Rejection("failed to issue access token", err)
	}

	id, err := g.signToken(jwt.MapClaims{
		"sub":       username,
		"iss":       g.opts.Issuer,
		"aud":       tokenAudience,
		"token_use": "id",
		"email":     u.email,
		"iat":       now.Unix(),
		"exp":       now.Add(g.opts.TokenTTL).Unix(),
	})
	if err != nil {
		return gateway.SignInResult{}, domain.Rejection("failed to issue id token", err)
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return gateway.SignInResult{}, domain.Rejection("failed to issue refresh token", err)
	}

	g.sessions[access] = &session{username: username, issuedAt: now}

	return gateway.SignInResult{
		Material: &domain.SessionMaterial{
			AccessToken:  access,
			IDToken:      id,
			RefreshToken: refresh,
		},
	}, nil
}

func (g *Gateway) signToken(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signingKey)
}

// ParseAccessToken validates a token this provider issued and returns its
// subject. Used by the harness's session introspection.
func (g *Gateway) ParseAccessToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return g.signingKey, nil
	}, jwt.WithIssuer(g.opts.Issuer), jwt.WithAudience(tokenAudience))
	if err != nil {
		return "", domain.Rejection("access token is invalid", err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", domain.Rejection("access token is invalid", err)
	}
	return sub, nil
}

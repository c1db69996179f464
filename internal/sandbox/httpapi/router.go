// Package httpapi is the sandbox's JSON surface: the panels of the original
// exercise UI rendered as endpoints. Every route drives the session flow
// controller or the bridge; none of them talk to the provider directly.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/internal/auth/flow"
	"github.com/dkellersch/authsandbox/pkg/httpx"
	"github.com/dkellersch/authsandbox/pkg/slogx"
)

// RedirectCompleter finishes a redirect-path federated handoff for a
// principal. The in-process provider implements it; a remote provider has a
// real hosted UI instead, leaving the callback route unavailable.
type RedirectCompleter interface {
	CompleteRedirect(principal string) error
}

// Config carries the router's dependencies.
type Config struct {
	Controller *flow.Controller
	Bridge     bridge.Bridge
	Completer  RedirectCompleter

	Logger       *slog.Logger
	BuildVersion string
	Env          string
}

// New builds the harness router.
func New(cfg Config) http.Handler {
	h := &handlers{
		controller: cfg.Controller,
		bridge:     cfg.Bridge,
		completer:  cfg.Completer,
		version:    cfg.BuildVersion,
		env:        cfg.Env,
		startTime:  time.Now(),
	}

	strict := httpx.RateLimit(httpx.StrictLimit)

	r := chi.NewRouter()
	r.Use(slogx.HTTPMiddleware(cfg.Logger))

	r.Route("/v1/auth", func(r chi.Router) {
		// Credential-bearing endpoints get the strict per-IP limit.
		r.With(strict).Post("/signup", h.signUp)
		r.With(strict).Post("/confirm", h.confirmSignUp)
		r.With(strict).Post("/signin", h.signIn)
		r.With(strict).Post("/challenge/select", h.selectChallenge)
		r.With(strict).Post("/challenge/respond", h.respondToChallenge)

		r.Post("/federated", h.federatedSignIn)
		r.Post("/federated/resume", h.resumeFederated)
		r.Get("/callback", h.federatedCallback)
		r.Post("/signout", h.signOut)
		r.Get("/session", h.session)
	})

	r.Route("/v1/mfa", func(r chi.Router) {
		r.Post("/setup", h.initiateFactorSetup)
		r.With(strict).Post("/verify", h.verifyFactorSetup)
	})

	r.Route("/v1/log", func(r chi.Router) {
		r.Get("/", h.logEntries)
		r.Delete("/", h.logClear)
	})

	r.Route("/v1/iap", func(r chi.Router) {
		r.Post("/products", h.iapProducts)
		r.Post("/purchase", h.iapPurchase)
		r.Post("/transactions", h.iapTransactions)
	})

	r.Get("/version", h.versionInfo)

	return r
}

type handlers struct {
	controller *flow.Controller
	bridge     bridge.Bridge
	completer  RedirectCompleter

	version   string
	env       string
	startTime time.Time
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/pkg/httpx"
	"github.com/dkellersch/authsandbox/pkg/slogx"
)

// challengeView is the API rendering of a pending challenge. The continuation
// token stays inside the controller; clients never see or replay it.
type challengeView struct {
	Kind    string   `json:"kind"`
	Choices []string `json:"choices,omitempty"`
}

type sessionView struct {
	Principal     string         `json:"principal,omitempty"`
	State         string         `json:"state"`
	Challenge     *challengeView `json:"challenge,omitempty"`
	Authenticated bool           `json:"authenticated"`
}

func newChallengeView(ch *domain.Challenge) *challengeView {
	if ch == nil {
		return nil
	}
	v := &challengeView{Kind: ch.Kind.String()}
	for _, choice := range ch.Choices {
		v.Choices = append(v.Choices, choice.String())
	}
	return v
}

func (h *handlers) sessionViewNow() sessionView {
	s := h.controller.Session()
	return sessionView{
		Principal:     s.Principal,
		State:         s.State.String(),
		Challenge:     newChallengeView(s.PendingChallenge),
		Authenticated: s.State == domain.Authenticated,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "request body is not valid JSON")
		return false
	}
	return true
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string            `json:"username"`
		Password   string            `json:"password"`
		Attributes map[string]string `json:"attributes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.controller.SignUp(r.Context(), req.Username, req.Password, req.Attributes)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (h *handlers) confirmSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.controller.ConfirmSignUp(r.Context(), req.Username, req.Code); err != nil {
		writeFlowError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.sessionViewNow())
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.controller.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		State     string         `json:"state"`
		Challenge *challengeView `json:"challenge,omitempty"`
	}{
		State:     out.State,
		Challenge: newChallengeView(out.Challenge),
	})
}

func (h *handlers) selectChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	kind, ok := parseChallengeKind(req.Kind)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "unknown challenge kind")
		return
	}

	if err := h.controller.SelectChallenge(r.Context(), kind); err != nil {
		writeFlowError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.sessionViewNow())
}

func (h *handlers) respondToChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.controller.RespondToChallenge(r.Context(), req.Code)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		State     string         `json:"state"`
		Challenge *challengeView `json:"challenge,omitempty"`
	}{
		State:     out.State,
		Challenge: newChallengeView(out.Challenge),
	})
}

func (h *handlers) federatedSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.controller.FederatedSignIn(r.Context(), req.Provider)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) resumeFederated(w http.ResponseWriter, r *http.Request) {
	out, err := h.controller.ResumeFederated(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		State string `json:"state"`
	}{State: out.State})
}

// federatedCallback plays the hosted UI's role in the redirect handoff: it
// completes the handoff provider-side and resumes the controller, so a
// browser landing here ends up authenticated in one hop.
func (h *handlers) federatedCallback(w http.ResponseWriter, r *http.Request) {
	if h.completer == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_available", "redirect completion requires the in-process provider")
		return
	}

	principal := r.URL.Query().Get("principal")
	if principal == "" {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "principal query parameter is required")
		return
	}

	if err := h.completer.CompleteRedirect(principal); err != nil {
		writeFlowError(w, err)
		return
	}

	if _, err := h.controller.ResumeFederated(r.Context()); err != nil {
		writeFlowError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.sessionViewNow())
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.SignOut(r.Context()); err != nil {
		log := slogx.FromContext(r.Context())
		log.Warn("sign-out completed locally with provider error", "err", err)
		writeFlowError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.sessionViewNow())
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.sessionViewNow())
}

func parseChallengeKind(s string) (domain.ChallengeKind, bool) {
	switch s {
	case domain.EmailOTP.String():
		return domain.EmailOTP, true
	case domain.SoftwareTokenMFA.String():
		return domain.SoftwareTokenMFA, true
	case domain.SelectableMFA.String():
		return domain.SelectableMFA, true
	default:
		return 0, false
	}
}

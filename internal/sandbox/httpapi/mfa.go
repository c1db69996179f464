package httpapi

import (
	"net/http"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/pkg/httpx"
)

func (h *handlers) initiateFactorSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Factor string `json:"factor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	factor, ok := parseFactorKind(req.Factor)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "unknown factor")
		return
	}

	enrollment, err := h.controller.InitiateFactorSetup(r.Context(), factor)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	// Provisioning material is secret; it is returned once and never cached.
	httpx.WriteJSON(w, http.StatusOK, struct {
		Factor          string `json:"factor"`
		SharedSecret    string `json:"shared_secret,omitempty"`
		ProvisioningURI string `json:"provisioning_uri,omitempty"`
	}{
		Factor:          enrollment.Factor.String(),
		SharedSecret:    enrollment.SharedSecret,
		ProvisioningURI: enrollment.ProvisioningURI,
	})
}

func (h *handlers) verifyFactorSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.controller.VerifyFactorSetup(r.Context(), req.Code); err != nil {
		writeFlowError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		Verified bool `json:"verified"`
	}{Verified: true})
}

func parseFactorKind(s string) (domain.FactorKind, bool) {
	switch s {
	case domain.FactorTOTP.String():
		return domain.FactorTOTP, true
	case domain.FactorEmail.String():
		return domain.FactorEmail, true
	default:
		return 0, false
	}
}

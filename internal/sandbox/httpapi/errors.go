package httpapi

import (
	"net/http"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
	"github.com/dkellersch/authsandbox/pkg/httpx"
)

// writeFlowError maps the core error taxonomy onto HTTP statuses. The kind
// string doubles as the machine-readable error code.
func writeFlowError(w http.ResponseWriter, err error) {
	kind, ok := domain.KindOf(err)
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case domain.ErrValidation:
		status = http.StatusBadRequest
	case domain.ErrInvalidState:
		status = http.StatusConflict
	case domain.ErrGatewayRejection:
		status = http.StatusUnprocessableEntity
	case domain.ErrTransportFailure:
		status = http.StatusBadGateway
	}

	httpx.WriteError(w, status, kind.String(), err.Error())
}

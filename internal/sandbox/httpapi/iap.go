package httpapi

import (
	"net/http"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/pkg/httpx"
)

// The IAP endpoints are fire-and-forget: the request goes to the host shell
// and results arrive later as bridge events, which the application pumps into
// the event log. 202 means "sent", not "answered".

func (h *handlers) iapProducts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OfferNames []string `json:"offer_names"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if h.bridge == nil {
		httpx.WriteError(w, http.StatusBadGateway, "transport_failure", "no native bridge attached")
		return
	}

	if err := h.bridge.RequestProducts(r.Context(), req.OfferNames); err != nil {
		httpx.WriteError(w, http.StatusBadGateway, "transport_failure", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"channel": bridge.ChannelProductsRequest})
}

func (h *handlers) iapPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "product_id is required")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	if h.bridge == nil {
		httpx.WriteError(w, http.StatusBadGateway, "transport_failure", "no native bridge attached")
		return
	}

	err := h.bridge.RequestPurchase(r.Context(), bridge.PurchaseRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadGateway, "transport_failure", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"channel": bridge.ChannelPurchaseRequest})
}

func (h *handlers) iapTransactions(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		httpx.WriteError(w, http.StatusBadGateway, "transport_failure", "no native bridge attached")
		return
	}

	if err := h.bridge.RequestTransactions(r.Context()); err != nil {
		httpx.WriteError(w, http.StatusBadGateway, "transport_failure", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"channel": bridge.ChannelTransactionsRequest})
}

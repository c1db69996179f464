package httpapi

import (
	"net/http"

	"github.com/dkellersch/authsandbox/pkg/httpx"
)

func (h *handlers) logEntries(w http.ResponseWriter, r *http.Request) {
	entries := h.controller.Log().Entries()
	httpx.WriteJSON(w, http.StatusOK, struct {
		Count   int `json:"count"`
		Entries any `json:"entries"`
	}{
		Count:   len(entries),
		Entries: entries,
	})
}

func (h *handlers) logClear(w http.ResponseWriter, r *http.Request) {
	h.controller.Log().Clear()
	w.WriteHeader(http.StatusNoContent)
}

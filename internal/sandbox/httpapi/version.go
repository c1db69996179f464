package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dkellersch/authsandbox/pkg/httpx"
)

func (h *handlers) versionInfo(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, struct {
		Service   string `json:"service"`
		Version   string `json:"version"`
		Env       string `json:"env"`
		GoVersion string `json:"go_version"`
		UptimeSec int64  `json:"uptime_seconds"`
	}{
		Service:   "authsandbox",
		Version:   h.version,
		Env:       h.env,
		GoVersion: runtime.Version(),
		UptimeSec: int64(time.Since(h.startTime).Seconds()),
	})
}

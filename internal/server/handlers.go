package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/humidistat/internal/core"
)

type healthResponse struct {
	Status  core.HealthStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

// HealthHandler reports the overall plugin health. ERROR answers 503 so
// probes fail; HEALTHY and DEGRADED answer 200.
func HealthHandler(plugins []core.Plugin) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status, message := core.Overall(plugins)
		code := http.StatusOK
		if status == core.HealthError {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: status, Message: message})
	})
}

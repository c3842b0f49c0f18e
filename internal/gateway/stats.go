// Package gateway - stats.go exposes aggregated metrics as JSON.
//
// GET /stats returns operational counters, current usage windows and the
// estimated spend for the configured model.
package gateway

import (
	"net/http"

	"github.com/elon-ai/dialogue-gateway/internal/config"
	"github.com/elon-ai/dialogue-gateway/internal/monitoring"
	"github.com/elon-ai/dialogue-gateway/internal/usage"
)

// StatsResponse is the JSON response for GET /stats.
type StatsResponse struct {
	Service  string                   `json:"service"`
	Version  string                   `json:"version"`
	Provider string                   `json:"provider"`
	Model    string                   `json:"model"`
	Gateway  monitoring.StatsResponse `json:"gateway"`
	Usage    usage.Stats              `json:"usage"`
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		g.writeError(w, "forbidden", http.StatusForbidden)
		return
	}

	g.writeJSON(w, http.StatusOK, StatsResponse{
		Service:  config.ServiceName,
		Version:  config.ServiceVersion,
		Provider: g.provider.Name(),
		Model:    g.provider.Model(),
		Gateway:  g.metrics.FullStats(g.provider.Model()),
		Usage:    g.gate.Stats(),
	})
}

// Package gateway - dashboard.go serves the usage dashboard at /usage/dashboard.
//
// DESIGN: The page is rendered by the usage gate itself (usage.Gate.HandleDashboard)
// from a snapshot, so it always agrees with /api/usage. It refreshes every 5s.
package gateway

import "net/http"

// handleUsageDashboard serves the usage dashboard.
// Restricted to localhost to prevent external access to usage data.
func (g *Gateway) handleUsageDashboard(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		g.writeError(w, "forbidden", http.StatusForbidden)
		return
	}
	g.gate.HandleDashboard(w, r)
}

package usage

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HandleDashboard serves the usage dashboard HTML page.
func (g *Gate) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := g.Snapshot()
	now := g.now()

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="5">
<title>Dialogue Gateway - Usage Dashboard</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: 'SF Mono', 'Fira Code', 'Cascadia Code', monospace; background: #0d1117; color: #c9d1d9; padding: 24px; }
  h1 { color: #58a6ff; font-size: 18px; margin-bottom: 16px; }
  h2 { color: #8b949e; font-size: 13px; margin: 24px 0 8px; text-transform: uppercase; letter-spacing: 1px; }
  .summary { display: flex; gap: 24px; margin-bottom: 24px; padding: 16px; background: #161b22; border: 1px solid #30363d; border-radius: 6px; }
  .stat-label { font-size: 11px; color: #8b949e; text-transform: uppercase; letter-spacing: 1px; }
  .stat-value { font-size: 24px; font-weight: bold; color: #f0f6fc; }
  .stat-limit { font-size: 12px; color: #8b949e; }
  table { width: 100%; border-collapse: collapse; background: #161b22; border: 1px solid #30363d; border-radius: 6px; overflow: hidden; }
  th { text-align: left; padding: 10px 14px; font-size: 11px; color: #8b949e; text-transform: uppercase; letter-spacing: 1px; background: #0d1117; border-bottom: 1px solid #30363d; }
  td { padding: 10px 14px; font-size: 13px; border-bottom: 1px solid #21262d; }
  tr:last-child td { border-bottom: none; }
  .tokens { color: #ffa657; font-weight: bold; }
  .bar-container { width: 100px; height: 8px; background: #21262d; border-radius: 4px; overflow: hidden; display: inline-block; vertical-align: middle; margin-right: 8px; }
  .bar { height: 100%; border-radius: 4px; }
  .bar-ok { background: #3fb950; }
  .bar-warn { background: #d29922; }
  .bar-danger { background: #f85149; }
  .empty { text-align: center; padding: 40px; color: #8b949e; }
  .footer { margin-top: 16px; font-size: 11px; color: #484f58; }
</style>
</head>
<body>
<h1>Dialogue Gateway - Usage Dashboard</h1>
<div class="summary">
`)
	writeStat(&b, "Last Minute", snap.RequestsLastMinute, snap.Limits.PerMinute)
	writeStat(&b, "Last Hour", snap.RequestsLastHour, snap.Limits.PerHour)
	writeStat(&b, "Last 24h", snap.RequestsLast24h, snap.Limits.PerDay)
	writeStat(&b, "Tokens Today", snap.TokensToday, snap.Limits.TokensPerDay)
	b.WriteString(`</div>
<h2>Recent Requests</h2>
`)

	if len(snap.Recent) == 0 {
		b.WriteString(`<div class="empty">No requests in the last 24 hours.</div>`)
	} else {
		b.WriteString(`<table>
<tr>
  <th>Completed</th>
  <th>Tokens</th>
  <th>Age</th>
</tr>
`)
		for _, rec := range snap.Recent {
			fmt.Fprintf(&b, `<tr>
  <td>%s</td>
  <td class="tokens">%d</td>
  <td>%s</td>
</tr>
`, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Tokens, formatAgo(now.Sub(rec.Timestamp)))
		}
		b.WriteString(`</table>`)
	}

	fmt.Fprintf(&b, `
<div class="footer">Token counter last reset %s. Auto-refreshes every 5 seconds</div>
</body>
</html>`, snap.LastReset.Format("2006-01-02 15:04"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

func writeStat(b *strings.Builder, label string, value, limit int) {
	pct := 0.0
	if limit > 0 {
		pct = float64(value) / float64(limit) * 100
	}
	if pct > 100 {
		pct = 100
	}

	barClass := "bar-ok"
	if pct > 80 {
		barClass = "bar-danger"
	} else if pct > 50 {
		barClass = "bar-warn"
	}

	fmt.Fprintf(b, `  <div class="stat">
    <div class="stat-label">%s</div>
    <div class="stat-value">%d</div>
    <div class="stat-limit"><div class="bar-container"><div class="bar %s" style="width:%.0f%%"></div></div>of %d</div>
  </div>
`, label, value, barClass, pct, limit)
}

func formatAgo(ago time.Duration) string {
	switch {
	case ago < time.Minute:
		return fmt.Sprintf("%ds ago", int(ago.Seconds()))
	case ago < time.Hour:
		return fmt.Sprintf("%dm ago", int(ago.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(ago.Hours()))
	}
}

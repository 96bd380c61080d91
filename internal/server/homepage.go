package server

import (
	"fmt"
	"log/slog"
	"net/http"
)

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>pickmyroute</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">pickmyroute navigation server</span>

Turn-by-turn guidance for routes planned through user-chosen waypoints.

<span class="header">Sessions:</span>
  POST   /api/sessions                              - Open a session
  DELETE /api/sessions/{id}                         - Close a session

<span class="header">Planning:</span>
  GET    /api/sessions/{id}/route                   - Current plan
  POST   /api/sessions/{id}/route                   - Plan origin to destination
  DELETE /api/sessions/{id}/route                   - Clear the plan
  GET    /api/sessions/{id}/route.kml               - Export the route as KML
  POST   /api/sessions/{id}/waypoints               - Add a locked waypoint
  DELETE /api/sessions/{id}/waypoints/{waypoint_id} - Remove a waypoint
  POST   /api/sessions/{id}/waypoints/restore       - Undo a removal
  PUT    /api/sessions/{id}/waypoints/order         - Reorder waypoints

<span class="header">Navigation:</span>
  POST   /api/sessions/{id}/navigation/start        - Start guidance
  POST   /api/sessions/{id}/navigation/stop         - Stop guidance
  POST   /api/sessions/{id}/fixes                   - Report a location fix
  GET    /api/sessions/{id}/progress                - Latest progress

<span class="header">Operations:</span>
  <a href="/healthz">GET /healthz</a>
  <a href="/metrics">GET /metrics</a>

<span class="header">Example Usage:</span>
  curl -X POST /api/sessions
  curl -X POST -d '{"lat":38.13,"lng":-120.45}' /api/sessions/{id}/fixes
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}

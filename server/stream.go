package server

import (
	"net/http"

	"go.uber.org/zap"
)

// StreamHandler answers client messages on the stream socket:
// {"type":"ping"} gets a pong, {"type":"snapshot"} gets the current dashboard,
// {"type":"close"} ends the session. Anything else is ignored.
func StreamHandler(p *Publisher, log *zap.Logger) WsHandler {
	return func(args *WSArgs) Data {
		switch args.EventType {
		case "ws_open":
			log.Info("stream client connected", zap.String("id", args.ID), zap.Any("count", args.Body["count"]))
			return Data{"type": "welcome", "id": args.ID}
		case "ws_close":
			log.Info("stream client left", zap.String("id", args.ID))
			return nil
		}

		switch args.Body.String("type") {
		case "ping":
			return Data{"type": "pong"}
		case "snapshot":
			return Data{"type": "snapshot", "dashboard": p.Dashboard()}
		case "close":
			return WsForceClose
		}
		return nil
	}
}

// MountAnalytics wires the publisher to the router: the websocket stream at
// streamPath, the dashboard (optionally ?limit=N most recent records), the
// report, and POST /api/analytics/publish to emit a record on demand.
func (r *Router) MountAnalytics(p *Publisher, streamPath string) *WsServer {
	ws := r.Ws(streamPath, StreamHandler(p, r.log))
	p.SetBroadcast(func(d Data) int { return ws.Broadcast(d) })

	r.Get("/api/analytics", func(c *Context) {
		if len(c.Query("limit")) == 0 {
			c.Json(p.Dashboard())
			return
		}

		limit, err := c.QueryInt("limit")
		if err != nil || limit < 1 {
			c.WriteHeader(http.StatusBadRequest)
			return
		}
		c.Json(p.RecentDashboard(limit))
	})

	r.Post("/api/analytics/publish", func(c *Context) {
		rec, err := p.PublishOne()
		if err != nil {
			r.log.Error("manual publish failed", zap.Error(err))
			c.WriteHeader(http.StatusInternalServerError)
			return
		}
		c.Json(rec)
	})

	r.Get("/api/analytics/report", func(c *Context) {
		report := p.Report()
		if report == nil {
			c.WriteHeader(http.StatusNoContent)
			return
		}
		c.Json(Data{"report": report, "metrics": p.Metrics()})
	})

	return ws
}

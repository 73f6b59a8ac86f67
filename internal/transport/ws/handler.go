package ws

import (
	"net/http"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/metrics"
	"github.com/vedran77/consult/internal/presence"
	"github.com/vedran77/consult/internal/service"
	"nhooyr.io/websocket"
)

// Deps are the services a realtime session calls into.
type Deps struct {
	Auth     *service.AuthService
	Guard    *service.AccessGuard
	Channels *service.ChannelService
	Presence *presence.Tracker
	Metrics  *metrics.Metrics
	// OriginPatterns restricts browser origins; "*" accepts any.
	OriginPatterns []string
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (browsers can't send headers on
// the upgrade); a Bearer header is accepted too.
func ServeWS(hub *Hub, deps *Deps) http.HandlerFunc {
	opts := &websocket.AcceptOptions{OriginPatterns: deps.OriginPatterns}
	if slices.Contains(deps.OriginPatterns, "*") {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			tokenStr, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		ident, err := deps.Auth.VerifyToken(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			logrus.WithError(err).Warn("ws: accept error")
			return
		}
		conn.SetReadLimit(maxMessageSize)

		NewClient(hub, deps, conn, ident).Serve(r.Context())
	}
}

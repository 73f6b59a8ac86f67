package handlers

import (
	"net/http"

	"github.com/vedran77/consult/internal/presence"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/transport/http/middleware"
)

type Services struct {
	Auth        *service.AuthService
	Guard       *service.AccessGuard
	Channels    *service.ChannelService
	Ratings     *service.RatingService
	Unread      *service.UnreadService
	Attachments *service.AttachmentService
	Presence    *presence.Tracker

	MaxUploadBytes int64
	LifecycleToken string
}

// NewRouter registers the participant API under /api/v1 and the lifecycle
// API under /internal/v1.
func NewRouter(s Services) *http.ServeMux {
	authHandler := NewAuthHandler(s.Auth)
	channelHandler := NewChannelHandler(s.Channels, s.Ratings, s.Unread, s.Guard, s.Presence)
	messageHandler := NewMessageHandler(s.Channels, s.Attachments, s.MaxUploadBytes)

	auth := middleware.Auth(s.Auth)
	lifecycle := middleware.Lifecycle(s.LifecycleToken)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})

	// Protected - Channels
	mux.Handle("GET /api/v1/channels", auth(http.HandlerFunc(channelHandler.List)))
	mux.Handle("GET /api/v1/channels/{id}", auth(http.HandlerFunc(channelHandler.Get)))
	mux.Handle("POST /api/v1/channels/{id}/rating", auth(http.HandlerFunc(channelHandler.Rate)))
	mux.Handle("GET /api/v1/channels/{id}/users", auth(http.HandlerFunc(channelHandler.Users)))
	mux.Handle("GET /api/v1/unread", auth(http.HandlerFunc(channelHandler.Unread)))

	// Protected - Messages
	mux.Handle("GET /api/v1/channels/{id}/messages", auth(http.HandlerFunc(messageHandler.History)))
	mux.Handle("POST /api/v1/channels/{id}/messages", auth(http.HandlerFunc(messageHandler.Send)))
	mux.Handle("POST /api/v1/channels/{id}/attachments", auth(http.HandlerFunc(messageHandler.Upload)))
	mux.Handle("POST /api/v1/channels/{id}/read", auth(http.HandlerFunc(messageHandler.MarkRead)))

	// Lifecycle
	mux.Handle("POST /internal/v1/channels", lifecycle(http.HandlerFunc(channelHandler.Create)))
	mux.Handle("POST /internal/v1/channels/{id}/close", lifecycle(http.HandlerFunc(channelHandler.Close)))
	mux.Handle("POST /internal/v1/profiles", lifecycle(http.HandlerFunc(authHandler.RegisterProfile)))
	mux.Handle("POST /internal/v1/tokens", lifecycle(http.HandlerFunc(authHandler.IssueToken)))

	return mux
}

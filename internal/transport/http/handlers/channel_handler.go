package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/presence"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/transport/http/middleware"
)

type ChannelHandler struct {
	channelService *service.ChannelService
	ratingService  *service.RatingService
	unreadService  *service.UnreadService
	guard          *service.AccessGuard
	presence       *presence.Tracker
}

func NewChannelHandler(
	channelService *service.ChannelService,
	ratingService *service.RatingService,
	unreadService *service.UnreadService,
	guard *service.AccessGuard,
	tracker *presence.Tracker,
) *ChannelHandler {
	return &ChannelHandler{
		channelService: channelService,
		ratingService:  ratingService,
		unreadService:  unreadService,
		guard:          guard,
		presence:       tracker,
	}
}

type createChannelRequest struct {
	service.CreateChannelInput
	TTLSeconds int `json:"ttl_seconds"`
}

// Create is called by the matching system once an expert accepts a request.
func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	input := req.CreateChannelInput
	if req.TTLSeconds > 0 {
		input.TTL = time.Duration(req.TTLSeconds) * time.Second
	}

	ch, err := h.channelService.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, "create channel", err)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (h *ChannelHandler) Close(w http.ResponseWriter, r *http.Request) {
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.channelService.Close(r.Context(), channelID); err != nil {
		writeServiceError(w, "close channel", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	channels, err := h.channelService.List(r.Context(), ident)
	if err != nil {
		writeServiceError(w, "list channels", err)
		return
	}

	if channels == nil {
		channels = []domain.Channel{}
	}

	writeJSON(w, http.StatusOK, channels)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	ch, err := h.channelService.Get(r.Context(), ident, channelID)
	if err != nil {
		writeServiceError(w, "get channel", err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Rate(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Rating domain.RatingOutcome `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.ratingService.Rate(r.Context(), ident, channelID, body.Rating); err != nil {
		writeServiceError(w, "rate channel", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Rating submitted successfully"})
}

// Users lists who is connected to the channel right now.
func (h *ChannelHandler) Users(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.guard.Authorize(r.Context(), channelID, ident); err != nil {
		writeServiceError(w, "list online users", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": h.presence.Snapshot(channelID)})
}

func (h *ChannelHandler) Unread(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())

	summary, err := h.unreadService.Count(r.Context(), ident)
	if err != nil {
		writeServiceError(w, "count unread", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

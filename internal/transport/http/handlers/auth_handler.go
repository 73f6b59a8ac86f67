package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/transport/apierr"
)

const (
	defaultTokenTTL = 24 * time.Hour
	maxTokenTTL     = 30 * 24 * time.Hour
)

// AuthHandler serves the identity side of the internal API: profile
// registration and token issuance for already-authenticated users.
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) RegisterProfile(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	p, err := h.authService.RegisterProfile(r.Context(), input)
	if err != nil {
		writeServiceError(w, "register profile", err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

type issueTokenRequest struct {
	UserID     uuid.UUID   `json:"user_id"`
	Role       domain.Role `json:"role"`
	ProfileID  uuid.UUID   `json:"profile_id"`
	TTLSeconds int         `json:"ttl_seconds"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.UserID == uuid.Nil || req.ProfileID == uuid.Nil || !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "user_id, role and profile_id are required")
		return
	}

	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = min(time.Duration(req.TTLSeconds)*time.Second, maxTokenTTL)
	}

	ident := domain.Identity{UserID: req.UserID, Role: req.Role, ProfileID: req.ProfileID}
	token, err := h.authService.IssueToken(ident, ttl)
	if err != nil {
		writeServiceError(w, "issue token", err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: time.Now().Add(ttl).UTC()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError renders err with its stable code. Unexpected errors are
// logged and reported as INTERNAL.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	e, known := apierr.Classify(err)
	if !known {
		logrus.WithError(err).WithField("op", op).Error("request failed")
	}
	if e.Field != "" {
		writeJSON(w, e.Status, map[string]any{
			"error": map[string]string{
				"code":    e.Code,
				"message": e.Message,
				"field":   e.Field,
			},
		})
		return
	}
	writeError(w, e.Status, e.Code, e.Message)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return uuid.Nil, false
	}
	return id, true
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/transport/apierr"
	"github.com/vedran77/consult/internal/transport/http/middleware"
)

// multipart framing allowance on top of the file size limit
const uploadOverhead = 64 << 10

type MessageHandler struct {
	channelService    *service.ChannelService
	attachmentService *service.AttachmentService
	maxUploadBytes    int64
}

func NewMessageHandler(channelService *service.ChannelService, attachmentService *service.AttachmentService, maxUploadBytes int64) *MessageHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &MessageHandler{
		channelService:    channelService,
		attachmentService: attachmentService,
		maxUploadBytes:    maxUploadBytes,
	}
}

func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	hist, err := h.channelService.History(r.Context(), ident, channelID)
	if err != nil {
		writeServiceError(w, "channel history", err)
		return
	}

	writeJSON(w, http.StatusOK, hist)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.channelService.Send(r.Context(), ident, channelID, input)
	if err != nil {
		writeServiceError(w, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Upload accepts a multipart form with a single "file" part.
func (h *MessageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+uploadOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apierr.CodeValidation,
				fmt.Sprintf("File must be at most %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, apierr.CodeValidation, "A file is required")
		return
	}
	defer file.Close()

	res, err := h.attachmentService.Upload(r.Context(), ident, channelID, service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, "upload attachment", err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	channelID, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		MessageIDs []domain.MessageID `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.channelService.MarkRead(r.Context(), ident, channelID, body.MessageIDs); err != nil {
		writeServiceError(w, "mark read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

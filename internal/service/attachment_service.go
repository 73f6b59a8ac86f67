package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/metrics"
	"github.com/vedran77/consult/internal/storage"
	"github.com/vedran77/consult/pkg/validator"
)

const DefaultMaxUploadBytes = 5 << 20

var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "application/pdf"}

type AttachmentPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

type UploadInput struct {
	Filename    string
	ContentType string
	// Size is the declared length. The body is still cut off at MaxBytes+1.
	Size int64
	Body io.Reader
}

type UploadResult struct {
	URL     string             `json:"file_url"`
	Ref     string             `json:"ref"`
	Kind    domain.ContentKind `json:"content_type"`
	Message domain.Message     `json:"message"`
}

// AttachmentService stores an upload and posts it to the channel as a
// message. If any step after the write fails the bytes are deleted again.
type AttachmentService struct {
	blobs    storage.BlobStore
	guard    *AccessGuard
	channels *ChannelService
	policy   AttachmentPolicy
	metrics  *metrics.Metrics
}

func NewAttachmentService(blobs storage.BlobStore, guard *AccessGuard, channels *ChannelService, policy AttachmentPolicy, m *metrics.Metrics) *AttachmentService {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxUploadBytes
	}
	if len(policy.AllowedTypes) == 0 {
		policy.AllowedTypes = DefaultAllowedTypes
	}
	return &AttachmentService{blobs: blobs, guard: guard, channels: channels, policy: policy, metrics: m}
}

func (s *AttachmentService) Upload(ctx context.Context, ident domain.Identity, channelID uuid.UUID, input UploadInput) (*UploadResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"function":   "AttachmentService.Upload",
		"channel_id": channelID,
		"user_id":    ident.UserID,
	})

	mimeType := normalizeMime(input.ContentType)
	if err := firstError(validator.ValidateUpload(mimeType, input.Size, s.policy.MaxBytes, s.policy.AllowedTypes)); err != nil {
		s.metrics.Upload("rejected")
		return nil, err
	}

	key := blobKey(channelID, mimeType)
	n, err := s.blobs.Put(ctx, key, io.LimitReader(input.Body, s.policy.MaxBytes+1), mimeType)
	if err != nil {
		s.metrics.Upload("error")
		return nil, fmt.Errorf("storing upload: %w: %w", ErrStorage, err)
	}

	// From here on the bytes exist and every failure must remove them.
	fail := func(result string, err error) (*UploadResult, error) {
		s.discard(ctx, key, log)
		s.metrics.Upload(result)
		return nil, err
	}

	if n > s.policy.MaxBytes {
		return fail("rejected", invalid("size", fmt.Sprintf("File must be at most %d bytes", s.policy.MaxBytes)))
	}

	p, err := s.guard.Authorize(ctx, channelID, ident)
	if err != nil {
		return fail("denied", err)
	}

	kind := domain.ContentFile
	if strings.HasPrefix(mimeType, "image/") {
		kind = domain.ContentImage
	}
	url := s.blobs.URL(key)
	stored, err := s.channels.AppendMessage(ctx, channelID, p.Role, url, kind, &key)
	if err != nil {
		return fail("error", err)
	}

	s.metrics.Upload("ok")
	log.WithFields(logrus.Fields{"size": n, "kind": kind, "filename": input.Filename}).Info("attachment stored")
	return &UploadResult{URL: url, Ref: key, Kind: kind, Message: stored.View}, nil
}

// Exists reports whether ref still resolves to stored bytes.
func (s *AttachmentService) Exists(ctx context.Context, ref string) (bool, error) {
	return s.blobs.Exists(ctx, ref)
}

func (s *AttachmentService) discard(ctx context.Context, key string, log *logrus.Entry) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.WithFields(logrus.Fields{"key": key, "error": err}).Error("failed to delete orphaned upload")
	}
}

func normalizeMime(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func blobKey(channelID uuid.UUID, mimeType string) string {
	key := channelID.String() + "/" + uuid.NewString()
	if ext, _ := mime.ExtensionsByType(mimeType); len(ext) > 0 {
		key += ext[0]
	}
	return key
}

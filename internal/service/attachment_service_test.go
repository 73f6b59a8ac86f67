package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/storage"
	"github.com/vedran77/consult/internal/storage/fs"
)

// spyStore remembers every key written so tests can check clean-up.
type spyStore struct {
	storage.BlobStore
	mu   sync.Mutex
	keys []string
}

func (s *spyStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return s.BlobStore.Put(ctx, key, r, contentType)
}

func (s *spyStore) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func newAttachments(t *testing.T, e *env, maxBytes int64) (*AttachmentService, *spyStore) {
	t.Helper()
	blobs, err := fs.New(t.TempDir(), "http://localhost:8080/uploads/")
	require.NoError(t, err)
	spy := &spyStore{BlobStore: blobs}
	svc := NewAttachmentService(spy, e.guard, e.channels, AttachmentPolicy{MaxBytes: maxBytes}, nil)
	return svc, spy
}

func png(n int) UploadInput {
	body := bytes.Repeat([]byte{0x89}, n)
	return UploadInput{Filename: "shot.png", ContentType: "image/png", Size: int64(n), Body: bytes.NewReader(body)}
}

func assertGone(t *testing.T, svc *AttachmentService, keys []string) {
	t.Helper()
	for _, key := range keys {
		ok, err := svc.Exists(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, ok, "orphaned upload %s", key)
	}
}

func TestUploadPostsMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ch := e.open(t)
	svc, _ := newAttachments(t, e, 1024)

	res, err := svc.Upload(ctx, e.seeker, ch.ID, png(100))
	require.NoError(t, err)
	assert.Equal(t, domain.ContentImage, res.Kind)
	assert.True(t, strings.HasPrefix(res.URL, "http://localhost:8080/uploads/"+ch.ID.String()+"/"))

	ok, err := svc.Exists(ctx, res.Ref)
	require.NoError(t, err)
	assert.True(t, ok)

	hist, err := e.channels.History(ctx, e.expert, ch.ID)
	require.NoError(t, err)
	require.Len(t, hist.Messages, 1)
	m := hist.Messages[0]
	assert.Equal(t, res.URL, m.Content)
	assert.Equal(t, domain.ContentImage, m.ContentType)
	require.NotNil(t, m.AttachmentRef)
	assert.Equal(t, res.Ref, *m.AttachmentRef)

	pdf := UploadInput{ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")}
	res, err = svc.Upload(ctx, e.expert, ch.ID, pdf)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentFile, res.Kind)
}

func TestUploadRejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ch := e.open(t)
	svc, spy := newAttachments(t, e, 1024)

	var verr *ValidationError
	_, err := svc.Upload(ctx, e.seeker, ch.ID, UploadInput{ContentType: "text/html", Size: 10, Body: strings.NewReader("<b>hi</b>")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)

	_, err = svc.Upload(ctx, e.seeker, ch.ID, png(2048))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "size", verr.Field)

	assert.Empty(t, spy.written())
}

func TestUploadRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ch := e.open(t)
	closed := e.open(t)
	require.NoError(t, e.channels.Close(ctx, closed.ID))
	stranger, _ := e.identity(t, domain.RoleSeeker, 0)

	tests := []struct {
		name    string
		ident   domain.Identity
		channel uuid.UUID
		input   UploadInput
		check   func(t *testing.T, err error)
	}{
		{
			name: "outsider", ident: stranger, channel: ch.ID, input: png(10),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrAccessDenied) },
		},
		{
			name: "missing channel", ident: e.seeker, channel: uuid.New(), input: png(10),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrAccessDenied) },
		},
		{
			name: "closed channel", ident: e.seeker, channel: closed.ID, input: png(10),
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrChannelInactive) },
		},
		{
			name: "body larger than declared", ident: e.seeker, channel: ch.ID,
			input: UploadInput{ContentType: "image/png", Size: 10, Body: bytes.NewReader(make([]byte, 4096))},
			check: func(t *testing.T, err error) {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, spy := newAttachments(t, e, 1024)
			res, err := svc.Upload(ctx, tt.ident, tt.channel, tt.input)
			require.Error(t, err)
			assert.Nil(t, res)
			tt.check(t, err)

			keys := spy.written()
			require.Len(t, keys, 1, "bytes were written before the failure")
			assertGone(t, svc, keys)
		})
	}

	hist, err := e.channels.History(ctx, e.seeker, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, hist.Messages)
}

type brokenStore struct{ storage.BlobStore }

func (brokenStore) Put(context.Context, string, io.Reader, string) (int64, error) {
	return 0, errors.New("disk full")
}

func TestUploadStorageFailure(t *testing.T) {
	e := newEnv(t)
	ch := e.open(t)
	svc := NewAttachmentService(brokenStore{}, e.guard, e.channels, AttachmentPolicy{}, nil)

	_, err := svc.Upload(context.Background(), e.seeker, ch.ID, png(10))
	assert.ErrorIs(t, err, ErrStorage)
}

package fs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/storage"
)

func TestPutExistsDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), "http://localhost/uploads")
	require.NoError(t, err)

	n, err := s.Put(ctx, "chan/a.txt", strings.NewReader("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	ok, err := s.Exists(ctx, "chan/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://localhost/uploads/chan/a.txt", s.URL("chan/a.txt"))

	require.NoError(t, s.Delete(ctx, "chan/a.txt"))
	require.NoError(t, s.Delete(ctx, "chan/a.txt"))
	ok, err = s.Exists(ctx, "chan/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectsEscapingKeys(t *testing.T) {
	s, err := New(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "/etc/passwd", "a/../../b"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), "")
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestFailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), "/uploads/")
	require.NoError(t, err)

	_, err = s.Put(ctx, "c/broken.bin", io.MultiReader(strings.NewReader("part"), failingReader{}), "")
	require.Error(t, err)

	ok, err := s.Exists(ctx, "c/broken.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandlerServesFile(t *testing.T) {
	s, err := New(t.TempDir(), "/uploads/")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "c/f.txt", strings.NewReader("content"), "text/plain")
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/uploads/", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/uploads/c/f.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "content", string(body))
}

func TestHandlerHidesDirectories(t *testing.T) {
	s, err := New(t.TempDir(), "/uploads/")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "c/f.txt", strings.NewReader("content"), "text/plain")
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/uploads/", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/uploads/c/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

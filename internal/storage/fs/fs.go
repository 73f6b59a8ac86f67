// Package fs stores attachments on the local file system.
package fs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/storage"
)

type Store struct {
	root     string
	serveURL string
}

var _ storage.BlobStore = (*Store)(nil)

// New creates root if needed. serveURL is the public prefix the files are
// served under, e.g. http://host/uploads/.
func New(root, serveURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(serveURL, "/") {
		serveURL += "/"
	}
	return &Store{root: root, serveURL: serveURL}, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", storage.ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ string) (int64, error) {
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(out, readerWithContext{ctx: ctx, r: r})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil {
			logrus.WithFields(logrus.Fields{"function": "fs.Put", "key": key, "error": rerr}).Warn("removing partial upload")
		}
		return 0, err
	}
	return size, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) URL(key string) string {
	return s.serveURL + key
}

// Handler serves stored files. Mount it under the serveURL path with the
// prefix stripped. Directory listings are not served.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// readerWithContext stops a copy once ctx is done.
type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (rc readerWithContext) Read(p []byte) (int, error) {
	if err := rc.ctx.Err(); err != nil {
		return 0, err
	}
	return rc.r.Read(p)
}

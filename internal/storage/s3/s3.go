// Package s3 stores attachments in an S3 compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/vedran77/consult/internal/storage"
)

type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// ServeURL prefixes keys in URL. Defaults to the bucket's virtual host URL.
	ServeURL string
}

type Store struct {
	svc      *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	serveURL string
}

var _ storage.BlobStore = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: creating session: %w", err)
	}

	svc := s3.New(sess)
	serveURL := cfg.ServeURL
	if serveURL == "" {
		serveURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", cfg.Bucket, cfg.Region)
	}
	if !strings.HasSuffix(serveURL, "/") {
		serveURL += "/"
	}
	return &Store{
		svc:      svc,
		uploader: s3manager.NewUploaderWithClient(svc),
		bucket:   cfg.Bucket,
		serveURL: serveURL,
	}, nil
}

// readerCounter counts the bytes read through it.
type readerCounter struct {
	reader io.Reader
	count  int64
}

func (rc *readerCounter) Read(buf []byte) (int, error) {
	n, err := rc.reader.Read(buf)
	atomic.AddInt64(&rc.count, int64(n))
	return n, err
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return 0, storage.ErrInvalidKey
	}
	rc := &readerCounter{reader: r}
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   rc,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	// The uploader aborts multipart uploads itself when a part fails.
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return 0, err
	}
	return atomic.LoadInt64(&rc.count), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
		return false, nil
	}
	return false, err
}

func (s *Store) URL(key string) string {
	return s.serveURL + key
}

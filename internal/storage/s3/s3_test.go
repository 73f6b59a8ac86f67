package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{Region: "eu-central-1"})
	assert.Error(t, err)
}

func TestURL(t *testing.T) {
	s, err := New(Config{Region: "eu-central-1", Bucket: "files"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.s3.eu-central-1.amazonaws.com/c/x.png", s.URL("c/x.png"))

	s, err = New(Config{Region: "us-east-1", Bucket: "files", Endpoint: "http://minio:9000", ForcePathStyle: true, ServeURL: "http://cdn.local/files"})
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/files/c/x.png", s.URL("c/x.png"))
}

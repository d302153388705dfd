package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Storage = (*S3Storage)(nil)

func TestS3Storage_Keys(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "runs/x/result.json", "runs/x/result.json"},
		{"quantsweep", "runs/x/result.json", "quantsweep/runs/x/result.json"},
		{"quantsweep/", "/runs/x/result.json", "quantsweep/runs/x/result.json"},
		{"/team/quantsweep/", "sweeps/y/report.json", "team/quantsweep/sweeps/y/report.json"},
	}

	for _, tt := range tests {
		s, err := NewS3(S3Config{Bucket: "b", Prefix: tt.prefix})
		require.NoError(t, err)
		key := s.key(tt.path)
		assert.Equal(t, tt.want, key, "prefix %q path %q", tt.prefix, tt.path)
		assert.Equal(t, strings.TrimPrefix(tt.path, "/"), s.rel(key))
	}
}

func TestNewS3(t *testing.T) {
	_, err := NewS3(S3Config{})
	assert.Error(t, err)

	s, err := NewS3(S3Config{Bucket: "reports", Endpoint: "http://localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "reports", s.bucket)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("runs/x/result.json"))
	assert.Equal(t, "application/octet-stream", contentType("blob.bin"))
}

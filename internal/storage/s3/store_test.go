package s3store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"https://e2.idrivee2.com", false, "https://e2.idrivee2.com"},
		{"minio.local:9000", false, "http://minio.local:9000"},
		{"minio.local:9000", true, "https://minio.local:9000"},
		{"localhost", false, "http://localhost"},
		{"http://127.0.0.1:9000", true, "http://127.0.0.1:9000"},
	}

	for _, tt := range tests {
		if got := normaliseEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", fmt.Errorf("wrapped: %w", &types.NoSuchKey{}), true},
		{"head not found", &types.NotFound{}, true},
		{"bare 404", statusErr(404), true},
		{"403", statusErr(403), false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("New() without bucket expected error")
	}
	if _, err := New(context.Background(), ClientConfig{Bucket: "lake"}); err == nil {
		t.Error("New() without region expected error")
	}
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testS3Config(endpoint string) S3Config {
	return S3Config{
		Bucket:          "models-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}
}

func TestNewS3Storage(t *testing.T) {
	t.Run("requires bucket", func(t *testing.T) {
		cfg := testS3Config("http://localhost:4566")
		cfg.Bucket = ""
		if _, err := NewS3Storage(context.Background(), t.TempDir(), cfg); err == nil {
			t.Error("expected error for empty bucket")
		}
	})

	t.Run("builds client", func(t *testing.T) {
		storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config("http://localhost:4566"))
		if err != nil {
			t.Fatalf("NewS3Storage() error = %v", err)
		}
		if storage.Bucket() != "models-bucket" {
			t.Errorf("Bucket() = %v, want models-bucket", storage.Bucket())
		}
	})
}

func TestS3Storage_InheritsTempStaging(t *testing.T) {
	storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config("http://localhost:4566"))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	ctx := context.Background()

	path, err := storage.SaveTemp(ctx, "upload", bytes.NewReader([]byte("test data")))
	if err != nil {
		t.Fatalf("SaveTemp() error = %v", err)
	}
	if err := storage.CleanupTemp(ctx, []string{path}); err != nil {
		t.Fatalf("CleanupTemp() error = %v", err)
	}
}

func TestS3Storage_Open_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}

		switch r.URL.Path {
		case "/models-bucket/models/cnn.msgpack":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("artifact bytes"))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		}
	}))
	defer server.Close()

	storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	ctx := context.Background()

	t.Run("existing object", func(t *testing.T) {
		rc, err := storage.Open(ctx, "models/cnn.msgpack")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer func() { _ = rc.Close() }()

		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(content) != "artifact bytes" {
			t.Errorf("got %q, want %q", content, "artifact bytes")
		}
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := storage.Open(ctx, "models/missing.msgpack")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

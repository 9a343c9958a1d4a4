package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/zombor/bill-itemizer/internal/common"
)

// DefaultMaxFileBytes is the largest object Resolve will download
const DefaultMaxFileBytes int64 = 100 * 1024 * 1024

// Config holds Cloud Storage client configuration
type Config struct {
	Endpoint        string // override for emulators and tests
	CredentialsFile string
	Anonymous       bool
	MaxFileBytes    int64
}

// Resolver downloads objects referenced by storage links
type Resolver struct {
	service  *storage.Service
	maxBytes int64
}

// NewResolver creates a Resolver backed by the Cloud Storage JSON API
func NewResolver(ctx context.Context, cfg Config) (*Resolver, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}

	service, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}

	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &Resolver{service: service, maxBytes: maxBytes}, nil
}

// Resolve downloads the object behind link
func (r *Resolver) Resolve(ctx context.Context, link string) ([]byte, error) {
	bucket, object, err := ParseLink(link)
	if err != nil {
		return nil, err
	}

	resp, err := r.service.Objects.Get(bucket, object).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: gs://%s/%s", common.ErrNotFound, bucket, object)
		}
		return nil, fmt.Errorf("downloading gs://%s/%s: %w", bucket, object, err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > r.maxBytes {
		return nil, fmt.Errorf("%w: gs://%s/%s is %d bytes, limit %d", common.ErrPayloadTooLarge, bucket, object, resp.ContentLength, r.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: gs://%s/%s exceeds %d bytes", common.ErrPayloadTooLarge, bucket, object, r.maxBytes)
	}

	slog.Debug("downloaded object", "bucket", bucket, "object", object, "size", len(data))
	return data, nil
}

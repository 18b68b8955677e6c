package storage

import (
	"context"
	"io"
)

// Store is the blob storage collaborator. Implementations return a
// publicly resolvable URL for each uploaded object.
type Store interface {
	Upload(ctx context.Context, bucket, path string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, bucket, path string) error
}

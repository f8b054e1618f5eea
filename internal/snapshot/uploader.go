package snapshot

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Uploader stores an object in a bucket.
type Uploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error
}

// GCSUploader uploads objects to Google Cloud Storage.
// It assumes Application Default Credentials are configured.
type GCSUploader struct {
	client *storage.Client
}

// NewGCSUploader creates the storage client. Call Close when done.
func NewGCSUploader(ctx context.Context) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSUploader: create storage client: %w", err)
	}
	return &GCSUploader{client: client}, nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// Upload streams r into bucket/object.
func (u *GCSUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := u.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: copy to %s/%s: %w", bucket, object, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize %s/%s: %w", bucket, object, err)
	}
	return nil
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(object, "/")
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

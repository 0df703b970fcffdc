// Package storage provides the Google Cloud Storage backend for the photo gateway.
//
// Objects are written to a single GCS bucket under the name the gateway
// chose. Custom metadata (the visibility tag) is stored as GCS object metadata.
//
// Credentials are resolved from the configured service-account file, or via
// Application Default Credentials (GOOGLE_APPLICATION_CREDENTIALS, gcloud
// auth, metadata server).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsPublicHost is the host serving public GCS objects.
const gcsPublicHost = "storage.googleapis.com"

// GCSAPI defines the subset of the GCS client that the backend uses. This
// allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given GCS object carrying the
	// content type and custom metadata.
	NewWriter(ctx context.Context, bucket, object, contentType string, metadata map[string]string) GCSWriter
	// Attrs returns the attributes of the given GCS object.
	Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error)
	// ListObjects lists object names with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	// SignedURL mints a V4 signed GET URL valid until expires.
	SignedURL(bucket, object string, expires time.Time) (string, error)
	// BucketAttrs fetches bucket attributes to prove the bucket is reachable.
	BucketAttrs(ctx context.Context, bucket string) error
}

// GCSWriter is a writer interface for writing to GCS objects.
type GCSWriter interface {
	io.WriteCloser
}

// GCSAttrs holds object attributes returned from GCS.
type GCSAttrs struct {
	Name        string
	ContentType string
	Size        int64
	Updated     time.Time
	Metadata    map[string]string
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object, contentType string, metadata map[string]string) GCSWriter {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

func (c *realGCSClient) Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSAttrs{
		Name:        attrs.Name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Updated:     attrs.Updated,
		Metadata:    attrs.Metadata,
	}, nil
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	q := &gcs.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}
	it := c.client.Bucket(bucket).Objects(ctx, q)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (c *realGCSClient) SignedURL(bucket, object string, expires time.Time) (string, error) {
	return c.client.Bucket(bucket).SignedURL(object, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
}

func (c *realGCSClient) BucketAttrs(ctx context.Context, bucket string) error {
	_, err := c.client.Bucket(bucket).Attrs(ctx)
	return err
}

// GCPBackend implements ObjectStore on a Google Cloud Storage bucket.
type GCPBackend struct {
	// BucketName is the GCS bucket name.
	BucketName string
	// Project is the GCP project ID.
	Project string
	// client is the GCS client (satisfying GCSAPI interface).
	client GCSAPI
	// closer releases the underlying SDK client; nil for injected mocks.
	closer io.Closer
	// now is the clock used for signed URL expiry.
	now func() time.Time
}

// NewGCPBackend creates a GCPBackend for the given bucket. When
// credentialsFile is empty, Application Default Credentials are used.
func NewGCPBackend(ctx context.Context, bucket, project, credentialsFile string) (*GCPBackend, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	b := &GCPBackend{
		BucketName: bucket,
		Project:    project,
		client:     &realGCSClient{client: client},
		closer:     client,
		now:        time.Now,
	}

	slog.Info("GCP storage backend initialized", "bucket", bucket, "project", project)
	return b, nil
}

// NewGCPBackendWithClient creates a GCPBackend with a pre-configured GCS
// client. This is primarily used for testing with mock clients.
func NewGCPBackendWithClient(bucket, project string, client GCSAPI) *GCPBackend {
	return &GCPBackend{
		BucketName: bucket,
		Project:    project,
		client:     client,
		now:        time.Now,
	}
}

// Bucket returns the GCS bucket name.
func (b *GCPBackend) Bucket() string {
	return b.BucketName
}

// PutObject streams the object to GCS. The write is committed when the
// writer is closed; a failed copy still closes the writer so the upload
// session is released.
func (b *GCPBackend) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	w := b.client.NewWriter(ctx, b.BucketName, name, opts.ContentType, copyMetadata(opts.Metadata))
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing GCS upload: %w", err)
	}
	return nil
}

// ListObjects lists every object whose name starts with prefix.
func (b *GCPBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	names, err := b.client.ListObjects(ctx, b.BucketName, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing GCS objects: %w", err)
	}
	return names, nil
}

// StatObject fetches object attributes from GCS.
func (b *GCPBackend) StatObject(ctx context.Context, name string) (*ObjectInfo, error) {
	attrs, err := b.client.Attrs(ctx, b.BucketName, name)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("getting object attrs from GCS: %w", err)
	}
	return &ObjectInfo{
		Name:        name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Updated:     attrs.Updated,
		Metadata:    attrs.Metadata,
	}, nil
}

// SignedURL mints a V4 signed GET URL. Signing needs credentials that can
// sign (a service-account key or the IAM signBlob permission).
func (b *GCPBackend) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	u, err := b.client.SignedURL(b.BucketName, name, b.now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnsupported, err)
	}
	return u, nil
}

// PublicHost returns the GCS public host.
func (b *GCPBackend) PublicHost() string {
	return gcsPublicHost
}

// HealthCheck verifies that the bucket is accessible.
func (b *GCPBackend) HealthCheck(ctx context.Context) error {
	return b.client.BucketAttrs(ctx, b.BucketName)
}

// Close releases the GCS client.
func (b *GCPBackend) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// Shutdown implements do.Shutdownable.
func (b *GCPBackend) Shutdown() error {
	return b.Close()
}

// isGCSNotFound checks if a GCS error is a 404/not-found error.
func isGCSNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return true
	}
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "404") {
			return true
		}
	}
	return false
}

// Ensure GCPBackend implements ObjectStore at compile time.
var _ ObjectStore = (*GCPBackend)(nil)

// Package storage defines the object store contract used by the photo
// gateway and its implementations (GCS, S3, Azure Blob, SQLite, local filesystem, in-memory).
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by StatObject when the object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrSigningUnsupported is returned by SignedURL when the backend or its
	// credentials cannot mint signed URLs.
	ErrSigningUnsupported = errors.New("signed URLs not supported by this backend")
)

// PutOptions carries the per-object attributes written alongside the data.
type PutOptions struct {
	ContentType string
	// Metadata is stored as object-level custom metadata.
	Metadata map[string]string
}

// ObjectInfo describes a stored object as reported by the backend.
type ObjectInfo struct {
	Name        string
	ContentType string
	Size        int64
	// Updated is the store-assigned modification time. Zero when the store
	// did not report one.
	Updated  time.Time
	Metadata map[string]string
}

// MetadataValue looks up a custom metadata key case-insensitively. Some
// stores canonicalize metadata keys (Azure title-cases them, S3 lowercases
// them), so exact-case lookups are not portable.
func (o *ObjectInfo) MetadataValue(key string) (string, bool) {
	if v, ok := o.Metadata[key]; ok {
		return v, true
	}
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// ObjectStore is the object storage a gateway writes photos to. It is bound
// to a single bucket. Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Bucket returns the bucket (or container) name.
	Bucket() string

	// PutObject writes the reader's content under name, overwriting any
	// existing object. size is the exact byte count, or -1 if unknown.
	PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error

	// ListObjects returns the full names of the objects whose names start
	// with prefix. An empty prefix lists the whole bucket.
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// StatObject fetches the object's attributes and custom metadata.
	// Returns an error wrapping ErrNotFound when the object does not exist.
	StatObject(ctx context.Context, name string) (*ObjectInfo, error)

	// SignedURL returns a time-limited read URL for the object.
	SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)

	// PublicHost is the host unsigned object URLs are built on.
	PublicHost() string

	// HealthCheck verifies that the bucket is reachable.
	HealthCheck(ctx context.Context) error
}

// PublicURL builds the stable unsigned URL of an object:
// https://<host>/<bucket>/<encoded-name>. Every byte of the name outside
// [A-Za-z0-9-_.~] is percent-encoded, so '/' becomes %2F and ' ' becomes %20.
func PublicURL(host, bucket, name string) string {
	return "https://" + host + "/" + bucket + "/" + escapeObjectName(name)
}

// escapeObjectName percent-encodes name as a single URI component.
// QueryEscape leaves only unreserved characters bare but writes ' ' as '+';
// a literal '+' is already %2B by then, so every remaining '+' is a space.
func escapeObjectName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// copyMetadata returns an independent copy of m.
func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// memObject holds the raw data and attributes of an in-memory object.
type memObject struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
	Updated     time.Time
}

// MemoryBackend implements ObjectStore using an in-memory map. It is meant
// for development and tests; nothing survives a restart.
type MemoryBackend struct {
	mu           sync.RWMutex
	bucket       string
	objects      map[string]memObject
	currentSize  int64
	maxSizeBytes int64

	// now is the clock used for Updated timestamps and fake URL expiry.
	now func() time.Time
}

// NewMemoryBackend creates a new MemoryBackend for bucket. maxSizeBytes caps
// the total stored bytes; zero means unlimited.
func NewMemoryBackend(bucket string, maxSizeBytes int64) *MemoryBackend {
	return &MemoryBackend{
		bucket:       bucket,
		objects:      make(map[string]memObject),
		maxSizeBytes: maxSizeBytes,
		now:          time.Now,
	}
}

// SetClock replaces the clock. Tests use it to control Updated ordering.
func (b *MemoryBackend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Bucket returns the logical bucket name.
func (b *MemoryBackend) Bucket() string {
	return b.bucket
}

// PutObject reads all data from the reader and stores it in memory.
func (b *MemoryBackend) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading object data: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Account for size change if replacing an existing object.
	delta := int64(len(data))
	if existing, found := b.objects[name]; found {
		delta -= int64(len(existing.Data))
	}

	if b.maxSizeBytes > 0 && b.currentSize+delta > b.maxSizeBytes {
		return fmt.Errorf("memory limit exceeded: current=%d, delta=%d, max=%d", b.currentSize, delta, b.maxSizeBytes)
	}

	b.objects[name] = memObject{
		Data:        data,
		ContentType: opts.ContentType,
		Metadata:    copyMetadata(opts.Metadata),
		Updated:     b.now().UTC(),
	}
	b.currentSize += delta
	return nil
}

// ListObjects returns the sorted names starting with prefix.
func (b *MemoryBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.objects))
	for name := range b.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// StatObject returns a copy of the object's attributes.
func (b *MemoryBackend) StatObject(ctx context.Context, name string) (*ObjectInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, found := b.objects[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &ObjectInfo{
		Name:        name,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
		Updated:     obj.Updated,
		Metadata:    copyMetadata(obj.Metadata),
	}, nil
}

// SignedURL returns a memory:// URL carrying the expiry. It is not
// dereferenceable; it exists so the upload flow behaves the same as with a
// cloud store.
func (b *MemoryBackend) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	b.mu.RLock()
	expires := b.now().Add(ttl).Unix()
	b.mu.RUnlock()
	return fmt.Sprintf("memory://%s/%s?expires=%d", b.bucket, url.PathEscape(name), expires), nil
}

// PublicHost returns localhost.
func (b *MemoryBackend) PublicHost() string {
	return "localhost"
}

// HealthCheck always succeeds for the in-memory backend.
func (b *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// Ensure MemoryBackend implements ObjectStore at compile time.
var _ ObjectStore = (*MemoryBackend)(nil)

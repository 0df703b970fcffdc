package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockGCSClient implements GCSAPI for unit testing.
type mockGCSClient struct {
	mu sync.Mutex
	// objects stores all objects keyed by their GCS object name.
	objects map[string]*mockGCSObject
	// putCalls tracks the number of completed writes.
	putCalls int
	// writeErr makes every writer fail on Close.
	writeErr error
	// signErr makes SignedURL fail.
	signErr error
	// bucketErr makes BucketAttrs fail.
	bucketErr error
	// clock stamps Updated on writes.
	clock time.Time
}

type mockGCSObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updated     time.Time
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{
		objects: make(map[string]*mockGCSObject),
		clock:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// mockGCSWriter implements GCSWriter for testing.
type mockGCSWriter struct {
	buf         *bytes.Buffer
	client      *mockGCSClient
	key         string
	contentType string
	metadata    map[string]string
}

func (w *mockGCSWriter) Write(p []byte) (n int, err error) {
	return w.buf.Write(p)
}

func (w *mockGCSWriter) Close() error {
	w.client.mu.Lock()
	defer w.client.mu.Unlock()
	if w.client.writeErr != nil {
		return w.client.writeErr
	}
	w.client.objects[w.key] = &mockGCSObject{
		data:        w.buf.Bytes(),
		contentType: w.contentType,
		metadata:    w.metadata,
		updated:     w.client.clock,
	}
	w.client.putCalls++
	return nil
}

func (m *mockGCSClient) NewWriter(ctx context.Context, bucket, object, contentType string, metadata map[string]string) GCSWriter {
	return &mockGCSWriter{
		buf:         &bytes.Buffer{},
		client:      m,
		key:         object,
		contentType: contentType,
		metadata:    metadata,
	}
}

func (m *mockGCSClient) Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[object]
	if !ok {
		return nil, fmt.Errorf("storage: object doesn't exist: not found")
	}
	return &GCSAttrs{
		Name:        object,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		Updated:     obj.updated,
		Metadata:    obj.metadata,
	}, nil
}

func (m *mockGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockGCSClient) SignedURL(bucket, object string, expires time.Time) (string, error) {
	if m.signErr != nil {
		return "", m.signErr
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s?X-Goog-Expires=%d", bucket, object, expires.Unix()), nil
}

func (m *mockGCSClient) BucketAttrs(ctx context.Context, bucket string) error {
	return m.bucketErr
}

// --- Test helpers ---

func newTestGCPBackend(t *testing.T) (*GCPBackend, *mockGCSClient) {
	t.Helper()
	mock := newMockGCSClient()
	backend := NewGCPBackendWithClient("test-bucket", "test-project", mock)
	return backend, mock
}

// --- Tests ---

func TestGCPPutAndStatObject(t *testing.T) {
	backend, mock := newTestGCPBackend(t)
	ctx := context.Background()

	content := "jpeg bytes"
	err := backend.PutObject(ctx, "cat_2026.jpg", strings.NewReader(content), int64(len(content)), PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"visibility": "public"},
	})
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if mock.putCalls != 1 {
		t.Errorf("putCalls = %d, want 1", mock.putCalls)
	}

	info, err := backend.StatObject(ctx, "cat_2026.jpg")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", info.Size, len(content))
	}
	if info.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", info.ContentType)
	}
	if v, _ := info.MetadataValue("visibility"); v != "public" {
		t.Errorf("visibility = %q, want public", v)
	}
	if !info.Updated.Equal(mock.clock) {
		t.Errorf("Updated = %v, want %v", info.Updated, mock.clock)
	}
}

func TestGCPPutObjectWriteError(t *testing.T) {
	backend, mock := newTestGCPBackend(t)
	mock.writeErr = errors.New("googleapi: Error 403: forbidden")

	err := backend.PutObject(context.Background(), "x.jpg", strings.NewReader("data"), 4, PutOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("error should carry the SDK message, got %v", err)
	}
	if len(mock.objects) != 0 {
		t.Error("no object should be stored on write failure")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestGCPPutObjectReaderError(t *testing.T) {
	backend, mock := newTestGCPBackend(t)

	err := backend.PutObject(context.Background(), "x.jpg", failingReader{}, -1, PutOptions{})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
	if mock.putCalls != 1 {
		// The writer is still closed so the session is released.
		t.Errorf("putCalls = %d, want 1 (writer closed)", mock.putCalls)
	}
}

func TestGCPStatObjectNotFound(t *testing.T) {
	backend, _ := newTestGCPBackend(t)

	_, err := backend.StatObject(context.Background(), "missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGCPListObjectsPrefix(t *testing.T) {
	backend, _ := newTestGCPBackend(t)
	ctx := context.Background()

	for _, name := range []string{"uploads/a.jpg", "uploads/b.png", "other/c.jpg"} {
		if err := backend.PutObject(ctx, name, strings.NewReader("x"), 1, PutOptions{}); err != nil {
			t.Fatalf("PutObject(%s) failed: %v", name, err)
		}
	}

	names, err := backend.ListObjects(ctx, "uploads/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(names) != 2 || names[0] != "uploads/a.jpg" || names[1] != "uploads/b.png" {
		t.Errorf("names = %v", names)
	}

	all, err := backend.ListObjects(ctx, "")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestGCPSignedURL(t *testing.T) {
	backend, mock := newTestGCPBackend(t)
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	u, err := backend.SignedURL(context.Background(), "a.jpg", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	want := fmt.Sprintf("X-Goog-Expires=%d", now.Add(7*24*time.Hour).Unix())
	if !strings.Contains(u, want) {
		t.Errorf("url %q does not carry expiry %q", u, want)
	}

	mock.signErr = errors.New("storage: missing required GoogleAccessID")
	if _, err := backend.SignedURL(context.Background(), "a.jpg", time.Hour); !errors.Is(err, ErrSigningUnsupported) {
		t.Errorf("err = %v, want ErrSigningUnsupported", err)
	}
}

func TestGCPHealthCheckAndHost(t *testing.T) {
	backend, mock := newTestGCPBackend(t)
	if err := backend.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	mock.bucketErr = errors.New("storage: bucket doesn't exist")
	if err := backend.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck error")
	}
	if backend.PublicHost() != "storage.googleapis.com" {
		t.Errorf("PublicHost() = %q", backend.PublicHost())
	}
	if backend.Bucket() != "test-bucket" {
		t.Errorf("Bucket() = %q", backend.Bucket())
	}
	if err := backend.Close(); err != nil {
		t.Errorf("Close with mock client failed: %v", err)
	}
}

func TestIsGCSNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("storage: object doesn't exist: not found"), true},
		{errors.New("googleapi: Error 404"), true},
		{errors.New("googleapi: Error 500: backend error"), false},
	}
	for _, tt := range tests {
		if got := isGCSNotFound(tt.err); got != tt.want {
			t.Errorf("isGCSNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"uploads/a b.jpg", "https://storage.googleapis.com/b/uploads%2Fa%20b.jpg"},
		{"a:b@c&d=e+f$g.jpg", "https://storage.googleapis.com/b/a%3Ab%40c%26d%3De%2Bf%24g.jpg"},
		{"x;y,z?.jpg", "https://storage.googleapis.com/b/x%3By%2Cz%3F.jpg"},
		{"plain-name_1.~.jpg", "https://storage.googleapis.com/b/plain-name_1.~.jpg"},
	}
	for _, tt := range tests {
		if got := PublicURL("storage.googleapis.com", "b", tt.name); got != tt.want {
			t.Errorf("PublicURL(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir(), "local-bucket")
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	return backend
}

func TestLocalPutAndStat(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	err := backend.PutObject(ctx, "cat.jpg", strings.NewReader("meow"), 4, PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"visibility": "public"},
	})
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(backend.RootDir, "local-bucket", "cat.jpg"))
	if err != nil {
		t.Fatalf("object file missing: %v", err)
	}
	if string(data) != "meow" {
		t.Errorf("file data = %q, want meow", data)
	}

	info, err := backend.StatObject(ctx, "cat.jpg")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if info.Size != 4 {
		t.Errorf("Size = %d, want 4", info.Size)
	}
	if info.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q", info.ContentType)
	}
	if info.Updated.IsZero() {
		t.Error("Updated should come from the file mtime")
	}
	if v, _ := info.MetadataValue("visibility"); v != "public" {
		t.Errorf("visibility = %q, want public", v)
	}
}

func TestLocalUpdatedIsMtime(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	if err := backend.PutObject(ctx, "a.jpg", strings.NewReader("a"), 1, PutOptions{}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	mtime := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(backend.RootDir, "local-bucket", "a.jpg"), mtime, mtime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	info, err := backend.StatObject(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if !info.Updated.Equal(mtime) {
		t.Errorf("Updated = %v, want %v", info.Updated, mtime)
	}
}

func TestLocalPutObjectAtomicWrite(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	if err := backend.PutObject(ctx, "a.jpg", strings.NewReader("data"), 4, PutOptions{}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	// No temp files should remain after a successful write.
	entries, err := os.ReadDir(filepath.Join(backend.RootDir, ".tmp"))
	if err != nil {
		t.Fatalf("ReadDir .tmp failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("found %d temp files after PutObject, want 0", len(entries))
	}
}

func TestLocalPutObjectReaderError(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	err := backend.PutObject(ctx, "broken.jpg", failingReader{}, -1, PutOptions{})
	if err == nil {
		t.Fatal("PutObject should fail when the reader fails")
	}
	if _, err := backend.StatObject(ctx, "broken.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("a failed write must not leave an object, StatObject err = %v", err)
	}
	if entries, _ := os.ReadDir(filepath.Join(backend.RootDir, ".tmp")); len(entries) != 0 {
		t.Errorf("found %d temp files after a failed write", len(entries))
	}
}

func TestLocalOverwrite(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	backend.PutObject(ctx, "a.jpg", strings.NewReader("one"), 3, PutOptions{Metadata: map[string]string{"visibility": "private"}})
	if err := backend.PutObject(ctx, "a.jpg", strings.NewReader("second"), 6, PutOptions{Metadata: map[string]string{"visibility": "public"}}); err != nil {
		t.Fatalf("PutObject overwrite failed: %v", err)
	}

	info, err := backend.StatObject(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if info.Size != 6 {
		t.Errorf("Size = %d, want 6", info.Size)
	}
	if v, _ := info.MetadataValue("visibility"); v != "public" {
		t.Errorf("visibility = %q, want public", v)
	}
}

func TestLocalListObjectsPrefix(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	for _, name := range []string{"uploads/b.jpg", "uploads/a.jpg", "other.jpg"} {
		if err := backend.PutObject(ctx, name, strings.NewReader("x"), 1, PutOptions{}); err != nil {
			t.Fatalf("PutObject(%q) failed: %v", name, err)
		}
	}

	all, err := backend.ListObjects(ctx, "")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if strings.Join(all, ",") != "other.jpg,uploads/a.jpg,uploads/b.jpg" {
		t.Errorf("ListObjects(\"\") = %v, sidecars must not be listed", all)
	}

	scoped, err := backend.ListObjects(ctx, "uploads/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if strings.Join(scoped, ",") != "uploads/a.jpg,uploads/b.jpg" {
		t.Errorf("ListObjects(uploads/) = %v", scoped)
	}
}

func TestLocalStatWithoutSidecar(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	path := filepath.Join(backend.RootDir, "local-bucket", "dropped.jpg")
	if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := backend.StatObject(ctx, "dropped.jpg")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if info.Size != 3 || info.ContentType != "" {
		t.Errorf("info = %+v", info)
	}
	if _, ok := info.MetadataValue("visibility"); ok {
		t.Error("an object without a sidecar has no visibility")
	}
}

func TestLocalStatNotFound(t *testing.T) {
	backend := newTestLocalBackend(t)
	if _, err := backend.StatObject(context.Background(), "missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StatObject err = %v, want ErrNotFound", err)
	}
}

func TestLocalRejectsEscapingNames(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	for _, name := range []string{"../escape.jpg", "/abs.jpg", "", "x.meta.json"} {
		if err := backend.PutObject(ctx, name, strings.NewReader("x"), 1, PutOptions{}); err == nil {
			t.Errorf("PutObject(%q) should be rejected", name)
		}
	}
	if _, err := os.Stat(filepath.Join(backend.RootDir, "escape.jpg")); !os.IsNotExist(err) {
		t.Error("a rejected name must not create a file outside the bucket")
	}
}

func TestLocalCleanTempFiles(t *testing.T) {
	backend := newTestLocalBackend(t)

	tmpDir := filepath.Join(backend.RootDir, ".tmp")
	for _, name := range []string{"tmp-1", "tmp-2"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := backend.CleanTempFiles(); err != nil {
		t.Fatalf("CleanTempFiles failed: %v", err)
	}
	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Errorf("found %d temp files after CleanTempFiles, want 0", len(entries))
	}
}

func TestLocalSigningHostHealth(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	if _, err := backend.SignedURL(ctx, "a.jpg", time.Hour); !errors.Is(err, ErrSigningUnsupported) {
		t.Errorf("SignedURL err = %v, want ErrSigningUnsupported", err)
	}
	if backend.PublicHost() != "localhost" {
		t.Errorf("PublicHost() = %q", backend.PublicHost())
	}
	if backend.Bucket() != "local-bucket" {
		t.Errorf("Bucket() = %q", backend.Bucket())
	}
	if err := backend.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	os.RemoveAll(filepath.Join(backend.RootDir, "local-bucket"))
	if err := backend.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck should fail once the bucket directory is gone")
	}
}

func TestNewLocalBackendInvalidBucket(t *testing.T) {
	if _, err := NewLocalBackend(t.TempDir(), "../up"); err == nil {
		t.Error("NewLocalBackend should reject a bucket outside the root")
	}
}

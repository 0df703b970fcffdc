package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryPutStatList(t *testing.T) {
	b := NewMemoryBackend("mem-bucket", 0)
	fixed := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return fixed })
	ctx := context.Background()

	meta := map[string]string{"visibility": "public"}
	if err := b.PutObject(ctx, "p/a.jpg", strings.NewReader("abc"), 3, PutOptions{ContentType: "image/jpeg", Metadata: meta}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	// Mutating the caller's map must not leak into the store.
	meta["visibility"] = "private"

	info, err := b.StatObject(ctx, "p/a.jpg")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if info.Size != 3 || info.ContentType != "image/jpeg" || !info.Updated.Equal(fixed) {
		t.Errorf("info = %+v", info)
	}
	if v, _ := info.MetadataValue("visibility"); v != "public" {
		t.Errorf("visibility = %q, want public", v)
	}

	if err := b.PutObject(ctx, "q/b.jpg", strings.NewReader("x"), 1, PutOptions{}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	names, _ := b.ListObjects(ctx, "p/")
	if len(names) != 1 || names[0] != "p/a.jpg" {
		t.Errorf("names = %v", names)
	}
	all, _ := b.ListObjects(ctx, "")
	if len(all) != 2 {
		t.Errorf("all = %v", all)
	}
}

func TestMemoryStatNotFound(t *testing.T) {
	b := NewMemoryBackend("mem-bucket", 0)
	if _, err := b.StatObject(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemorySizeLimit(t *testing.T) {
	b := NewMemoryBackend("mem-bucket", 4)
	ctx := context.Background()

	if err := b.PutObject(ctx, "a", strings.NewReader("abcd"), 4, PutOptions{}); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	if err := b.PutObject(ctx, "b", strings.NewReader("e"), 1, PutOptions{}); err == nil {
		t.Error("expected memory limit error")
	}
	// Replacing an object only counts the size delta.
	if err := b.PutObject(ctx, "a", strings.NewReader("xy"), 2, PutOptions{}); err != nil {
		t.Errorf("replace failed: %v", err)
	}
}

func TestMemorySignedURL(t *testing.T) {
	b := NewMemoryBackend("mem-bucket", 0)
	b.SetClock(func() time.Time { return time.Unix(1000, 0) })

	u, err := b.SignedURL(context.Background(), "a b.jpg", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if u != "memory://mem-bucket/a%20b.jpg?expires=4600" {
		t.Errorf("url = %q", u)
	}
	if b.PublicHost() != "localhost" {
		t.Errorf("PublicHost() = %q", b.PublicHost())
	}
	if err := b.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

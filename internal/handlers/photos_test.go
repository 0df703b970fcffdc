package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/photo"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/storage"
)

func newTestPhotosRouter(t *testing.T, store storage.ObjectStore) chi.Router {
	t.Helper()
	router := chi.NewMux()
	cfg := huma.DefaultConfig("Photo Gateway Test", "0.0.0")
	cfg.CreateHooks = nil
	api := humachi.New(router, cfg)
	NewPhotosHandler(photo.NewGateway(store, photo.Options{})).Register(api)
	RegisterUploadDoc(api)
	return router
}

func putPhoto(t *testing.T, store storage.ObjectStore, name, visibility string) {
	t.Helper()
	err := store.PutObject(context.Background(), name, bytes.NewReader([]byte("img")), 3, storage.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{photo.VisibilityKey: visibility},
	})
	if err != nil {
		t.Fatalf("PutObject(%q) failed: %v", name, err)
	}
}

func TestListPhotos(t *testing.T) {
	mem := storage.NewMemoryBackend("test-bucket", 0)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	mem.SetClock(func() time.Time { return now })
	putPhoto(t, mem, "old.jpg", "public")
	putPhoto(t, mem, "hidden.jpg", "private")
	now = now.Add(time.Minute)
	putPhoto(t, mem, "new.jpg", "public")

	router := newTestPhotosRouter(t, mem)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/photos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		OK     bool `json:"ok"`
		Photos []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"photos"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !body.OK {
		t.Error("ok = false")
	}
	if len(body.Photos) != 2 {
		t.Fatalf("got %d photos, want 2: %s", len(body.Photos), rec.Body.String())
	}
	if body.Photos[0].Name != "new.jpg" || body.Photos[1].Name != "old.jpg" {
		t.Errorf("order = %s, %s", body.Photos[0].Name, body.Photos[1].Name)
	}
	if want := "https://localhost/test-bucket/new.jpg"; body.Photos[0].URL != want {
		t.Errorf("URL = %q, want %q", body.Photos[0].URL, want)
	}
}

func TestListPhotosEmpty(t *testing.T) {
	router := newTestPhotosRouter(t, storage.NewMemoryBackend("empty", 0))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/photos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got := string(body["photos"]); got != "[]" {
		t.Errorf("photos = %s, want []", got)
	}
}

// brokenListStore fails every listing.
type brokenListStore struct {
	*storage.MemoryBackend
}

func (brokenListStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return nil, errors.New("bucket unreachable")
}

func TestListPhotosStorageError(t *testing.T) {
	router := newTestPhotosRouter(t, brokenListStore{storage.NewMemoryBackend("b", 0)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/photos", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["error"] != "bucket unreachable" {
		t.Errorf("error = %v", body["error"])
	}
	if _, ok := body["ok"]; ok {
		t.Error("error body must not carry ok")
	}
}

func TestUploadDocRegistered(t *testing.T) {
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Photo Gateway Test", "0.0.0"))
	RegisterUploadDoc(api)

	item := api.OpenAPI().Paths["/upload"]
	if item == nil || item.Post == nil {
		t.Fatal("POST /upload missing from OpenAPI")
	}
	media := item.Post.RequestBody.Content["multipart/form-data"]
	if media == nil || media.Schema.Properties[FieldPhoto] == nil {
		t.Error("multipart schema missing photo field")
	}
}

func TestNewErrorBody(t *testing.T) {
	body := NewErrorBody(errors.New("boom"))
	if body.Status != http.StatusInternalServerError || body.Message != "boom" {
		t.Errorf("body = %+v", body)
	}
	if NewErrorBody(body) != body {
		t.Error("an ErrorBody must pass through unchanged")
	}
}

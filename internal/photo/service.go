// Package photo implements the upload gateway's two operations: Ingest
// stores one uploaded photo under a generated name, and Enumerate lists the
// public photos in the bucket.
//
// The gateway owns naming and visibility policy only. Durability, ordering
// of concurrent writes and addressing belong to the injected object store.
package photo

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	gwerrors "github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/errors"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/logging"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/metrics"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/storage"
)

const (
	// SignedURLTTL is the lifetime of the read URL returned after an upload.
	// Seven days is the longest lifetime S3 and GCS V4 signing allow.
	SignedURLTTL = 7 * 24 * time.Hour

	// DefaultContentType is stored when the upload declares none.
	DefaultContentType = "application/octet-stream"

	// DefaultListConcurrency bounds concurrent metadata fetches in Enumerate.
	DefaultListConcurrency = 8
)

// Options configures a Gateway. The zero value is usable.
type Options struct {
	// Prefix is prepended to every generated object name and scopes listings.
	Prefix string
	// PublicHost overrides the store's host in unsigned URLs.
	PublicHost string
	// StrictVisibility rejects visibility values other than public/private.
	StrictVisibility bool
	// ListConcurrency bounds concurrent metadata fetches. <= 0 uses
	// DefaultListConcurrency.
	ListConcurrency int
	// Now is the clock used for object names. nil uses time.Now.
	Now func() time.Time
}

// Gateway runs Ingest and Enumerate against one object store. It holds no
// mutable state and is safe for concurrent use.
type Gateway struct {
	store       storage.ObjectStore
	prefix      string
	publicHost  string
	strict      bool
	concurrency int
	now         func() time.Time
}

// NewGateway creates a Gateway over store.
func NewGateway(store storage.ObjectStore, opts Options) *Gateway {
	g := &Gateway{
		store:       store,
		prefix:      opts.Prefix,
		publicHost:  opts.PublicHost,
		strict:      opts.StrictVisibility,
		concurrency: opts.ListConcurrency,
		now:         opts.Now,
	}
	if g.concurrency <= 0 {
		g.concurrency = DefaultListConcurrency
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Store returns the underlying object store.
func (g *Gateway) Store() storage.ObjectStore {
	return g.store
}

// IngestRequest is one upload as received from the client.
type IngestRequest struct {
	// Name is the caller-supplied base name, sanitized before use.
	Name string
	// Visibility is the raw form value.
	Visibility string
	// Filename is the original filename of the uploaded part.
	Filename string
	// ContentType is the part's declared media type.
	ContentType string
	// Body is the file content. nil means no file was uploaded.
	Body io.Reader
	// Size is the exact content length, or -1 when unknown.
	Size int64
}

// IngestResult is returned to the client after a successful upload.
type IngestResult struct {
	OK         bool   `json:"ok"`
	Bucket     string `json:"bucket"`
	ObjectName string `json:"objectName"`
	Visibility string `json:"visibility"`
	SignedURL  string `json:"signedUrl,omitempty"`
}

// Photo is one entry of a listing.
type Photo struct {
	Name        string    `json:"name" doc:"Stored object name"`
	URL         string    `json:"url" doc:"Stable unsigned URL of the object"`
	Updated     time.Time `json:"updated,omitzero" doc:"Last modification time reported by the store"`
	Size        int64     `json:"size" doc:"Object size in bytes"`
	ContentType string    `json:"contentType" doc:"Stored media type"`
}

// Ingest stores one photo. It creates exactly one object on success and
// none on any error.
func (g *Gateway) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	logger := logging.FromContext(ctx)

	if req.Body == nil {
		metrics.UploadsTotal.WithLabelValues("none", "missing_file").Inc()
		return nil, gwerrors.ErrMissingFile
	}

	visibility, err := ResolveVisibility(req.Visibility, g.strict)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("invalid", "rejected").Inc()
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	objectName := ObjectName(g.prefix, req.Name, req.Filename, g.now())

	err = g.store.PutObject(ctx, objectName, req.Body, req.Size, storage.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{VisibilityKey: visibility},
	})
	metrics.ObserveStorage("put", err)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(visibility, "error").Inc()
		logger.Error("storing photo failed", "object", objectName, "error", err)
		return nil, gwerrors.ErrStorageWrite.Wrap(err)
	}
	if req.Size > 0 {
		metrics.UploadBytesTotal.Add(float64(req.Size))
	}

	result := &IngestResult{
		OK:         true,
		Bucket:     g.store.Bucket(),
		ObjectName: objectName,
		Visibility: visibility,
	}

	signed, err := g.store.SignedURL(ctx, objectName, SignedURLTTL)
	metrics.ObserveStorage("sign", err)
	if err != nil {
		logger.Warn("signed URL unavailable", "object", objectName, "error", err)
	} else {
		result.SignedURL = signed
	}

	metrics.UploadsTotal.WithLabelValues(visibility, "success").Inc()
	logger.Info("photo stored",
		"object", objectName,
		"visibility", visibility,
		"content_type", contentType,
		"size", req.Size,
	)
	return result, nil
}

// Enumerate lists public photos, newest first. Objects whose metadata
// cannot be fetched are skipped. Ties on the update time are broken by
// name so the order is stable across calls.
func (g *Gateway) Enumerate(ctx context.Context) ([]Photo, error) {
	logger := logging.FromContext(ctx)

	names, err := g.store.ListObjects(ctx, g.prefix)
	metrics.ObserveStorage("list", err)
	if err != nil {
		logger.Error("listing objects failed", "prefix", g.prefix, "error", err)
		return nil, gwerrors.ErrStorageRead.Wrap(err)
	}

	infos := make([]*storage.ObjectInfo, len(names))
	var skipped atomic.Int64

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, name := range names {
		i, name := i, name
		eg.Go(func() error {
			info, err := g.store.StatObject(ctx, name)
			metrics.ObserveStorage("stat", err)
			if err != nil {
				skipped.Add(1)
				metrics.ListingSkippedTotal.Inc()
				logger.Warn("skipping object in listing", "object", name, "error", gwerrors.ErrObjectMetadata.Wrap(err))
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, gwerrors.ErrStorageRead.Wrap(err)
	}

	host := g.publicHost
	if host == "" {
		host = g.store.PublicHost()
	}
	bucket := g.store.Bucket()

	public := lo.Filter(infos, func(info *storage.ObjectInfo, _ int) bool {
		if info == nil {
			return false
		}
		v, _ := info.MetadataValue(VisibilityKey)
		return v == VisibilityPublic
	})
	photos := lo.Map(public, func(info *storage.ObjectInfo, _ int) Photo {
		return Photo{
			Name:        info.Name,
			URL:         storage.PublicURL(host, bucket, info.Name),
			Updated:     info.Updated,
			Size:        info.Size,
			ContentType: info.ContentType,
		}
	})

	slices.SortFunc(photos, func(a, b Photo) int {
		if c := b.Updated.Compare(a.Updated); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	metrics.ListedPhotos.Set(float64(len(photos)))
	logger.Debug("listed photos",
		"objects", len(names),
		"public", len(photos),
		"skipped", skipped.Load(),
	)
	return photos, nil
}

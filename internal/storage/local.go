package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/uid"
)

// sidecarSuffix names the JSON file holding an object's attributes.
const sidecarSuffix = ".meta.json"

// sidecar is the on-disk form of an object's attributes.
type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LocalBackend implements ObjectStore on the local filesystem. Objects are
// files under <root>/<bucket>/<name>, each with a <name>.meta.json sidecar
// holding its content type and custom metadata. The file mtime is the
// object's update time.
type LocalBackend struct {
	// RootDir is the base directory under which bucket directories live.
	RootDir string

	bucket string
}

// NewLocalBackend creates a LocalBackend rooted at rootDir for bucket. It
// creates the bucket directory and the temp directory if they do not exist.
func NewLocalBackend(rootDir, bucket string) (*LocalBackend, error) {
	if bucket == "" || !filepath.IsLocal(bucket) {
		return nil, fmt.Errorf("invalid bucket name %q for local storage", bucket)
	}
	b := &LocalBackend{RootDir: rootDir, bucket: bucket}
	if err := os.MkdirAll(b.bucketDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating bucket directory %q: %w", b.bucketDir(), err)
	}
	// The .tmp directory holds in-flight writes until they are renamed.
	if err := os.MkdirAll(b.tmpDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %q: %w", b.tmpDir(), err)
	}
	return b, nil
}

// CleanTempFiles removes all files in the .tmp directory. It runs on startup:
// anything left there is an incomplete write from a previous crash.
func (b *LocalBackend) CleanTempFiles() error {
	entries, err := os.ReadDir(b.tmpDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(b.tmpDir(), entry.Name()))
		}
	}
	return nil
}

func (b *LocalBackend) bucketDir() string {
	return filepath.Join(b.RootDir, b.bucket)
}

func (b *LocalBackend) tmpDir() string {
	return filepath.Join(b.RootDir, ".tmp")
}

func (b *LocalBackend) tempPath() string {
	return filepath.Join(b.tmpDir(), "tmp-"+uid.New())
}

// objectPath returns the file path for name, rejecting names that would
// escape the bucket directory or collide with a sidecar.
func (b *LocalBackend) objectPath(name string) (string, error) {
	native := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(native) || strings.HasSuffix(name, sidecarSuffix) {
		return "", fmt.Errorf("invalid object name %q for local storage", name)
	}
	return filepath.Join(b.bucketDir(), native), nil
}

// Bucket returns the bucket directory name.
func (b *LocalBackend) Bucket() string {
	return b.bucket
}

// PutObject writes the sidecar and then the data, each through a temp file
// that is fsynced and renamed into place. An object whose data file exists
// therefore always has its attributes on disk.
func (b *LocalBackend) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	objPath, err := b.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %q: %w", name, err)
	}

	meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err != nil {
		return fmt.Errorf("encoding metadata for %q: %w", name, err)
	}
	if err := b.writeAtomic(objPath+sidecarSuffix, strings.NewReader(string(meta))); err != nil {
		return fmt.Errorf("writing metadata for %q: %w", name, err)
	}
	if err := b.writeAtomic(objPath, reader); err != nil {
		return fmt.Errorf("writing object %q: %w", name, err)
	}
	return nil
}

// writeAtomic copies r to a temp file, fsyncs it and renames it to path.
func (b *LocalBackend) writeAtomic(path string, r io.Reader) error {
	tmpPath := b.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to final path: %w", err)
	}
	return nil
}

// ListObjects walks the bucket directory and returns the names, sorted,
// that start with prefix. Sidecar files are not objects.
func (b *LocalBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	root := b.bucketDir()
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking bucket directory %q: %w", root, err)
	}
	sort.Strings(names)
	return names, nil
}

// StatObject reads the file's size and mtime and its sidecar. A missing
// sidecar yields an object with no content type and no metadata.
func (b *LocalBackend) StatObject(ctx context.Context, name string) (*ObjectInfo, error) {
	objPath, err := b.objectPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, b.bucket, name)
	}
	fi, err := os.Stat(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, b.bucket, name)
		}
		return nil, fmt.Errorf("stat object file %q: %w", name, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, b.bucket, name)
	}

	var meta sidecar
	data, err := os.ReadFile(objPath + sidecarSuffix)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading metadata for %q: %w", name, err)
	default:
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %q: %w", name, err)
		}
	}

	return &ObjectInfo{
		Name:        name,
		ContentType: meta.ContentType,
		Size:        fi.Size(),
		Updated:     fi.ModTime().UTC(),
		Metadata:    meta.Metadata,
	}, nil
}

// SignedURL is not supported: local files have no signing authority.
func (b *LocalBackend) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	return "", ErrSigningUnsupported
}

// PublicHost returns localhost.
func (b *LocalBackend) PublicHost() string {
	return "localhost"
}

// HealthCheck verifies that the bucket directory is accessible.
func (b *LocalBackend) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(b.bucketDir())
	return err
}

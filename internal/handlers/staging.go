package handlers

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/uid"
)

// Staging modes for uploaded file content.
const (
	StagingMemory = "memory"
	StagingDisk   = "disk"
)

// stagingPrefix names every file disk staging creates.
const stagingPrefix = "upload-"

// stagedFile is uploaded content held until the form has been fully read.
// Release must be called exactly once when the request is done.
type stagedFile struct {
	body io.ReadSeeker
	size int64

	release func()
}

// Release frees the staged content. For disk staging it closes and removes
// the temporary file.
func (s *stagedFile) Release() {
	if s.release != nil {
		s.release()
	}
}

// stager copies a multipart file part somewhere it can be re-read.
type stager struct {
	mode string
	dir  string
}

func (s stager) stage(r io.Reader) (*stagedFile, error) {
	if s.mode == StagingDisk {
		return s.stageDisk(r)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return nil, err
	}
	return &stagedFile{body: bytes.NewReader(buf.Bytes()), size: n}, nil
}

func (s stager) stageDisk(r io.Reader) (*stagedFile, error) {
	dir := s.dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, stagingPrefix+uid.New())
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	release := func() {
		f.Close()
		os.Remove(path)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		release()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		release()
		return nil, fmt.Errorf("rewinding staging file: %w", err)
	}
	return &stagedFile{body: f, size: n, release: release}, nil
}

// CleanStagingFiles removes staged uploads left in dir by a previous process.
// Files not created by disk staging are left alone.
func CleanStagingFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), stagingPrefix) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}

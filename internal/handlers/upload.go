package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/config"
	gwerrors "github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/errors"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/photo"
)

// Form field names accepted by POST /upload.
const (
	FieldPhoto      = "photo"
	FieldName       = "name"
	FieldVisibility = "visibility"
)

// maxFieldBytes caps the size of a text form field.
const maxFieldBytes = 64 << 10

// UploadHandler handles POST /upload.
type UploadHandler struct {
	gateway  *photo.Gateway
	maxBytes int64
	stager   stager
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(gateway *photo.Gateway, cfg config.UploadConfig) *UploadHandler {
	return &UploadHandler{
		gateway:  gateway,
		maxBytes: cfg.MaxBytes,
		stager:   stager{mode: cfg.Staging, dir: cfg.StagingDir},
	}
}

// ServeHTTP reads the multipart form as a stream, stages the first "photo"
// file part, and hands it to the gateway once every field has been read.
// A request that is not multipart is treated as carrying no file.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	req := photo.IngestRequest{Size: -1}

	mr, err := r.MultipartReader()
	if err == nil {
		staged, err := h.readForm(mr, &req)
		if staged != nil {
			defer staged.Release()
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	result, err := h.gateway.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readForm walks the parts of mr, filling req. The returned stagedFile, if
// any, is owned by the caller even when an error is returned.
func (h *UploadHandler) readForm(mr *multipart.Reader, req *photo.IngestRequest) (*stagedFile, error) {
	var staged *stagedFile
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return staged, nil
		}
		if err != nil {
			return staged, classifyBodyError(err)
		}

		switch {
		case part.FormName() == FieldPhoto && part.FileName() != "" && staged == nil:
			staged, err = h.stager.stage(part)
			if err != nil {
				part.Close()
				return nil, classifyBodyError(err)
			}
			req.Filename = part.FileName()
			req.ContentType = part.Header.Get("Content-Type")
			req.Body = staged.body
			req.Size = staged.size
		case part.FormName() == FieldName && part.FileName() == "":
			req.Name, err = readField(part)
		case part.FormName() == FieldVisibility && part.FileName() == "":
			req.Visibility, err = readField(part)
		default:
			_, err = io.Copy(io.Discard, part)
		}
		part.Close()
		if err != nil {
			return staged, classifyBodyError(err)
		}
	}
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", gwerrors.ErrFieldTooLarge.WithMessage("form field %q exceeds %d bytes", part.FormName(), maxFieldBytes)
	}
	return string(data), nil
}

// classifyBodyError maps request body read failures to gateway errors.
func classifyBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return gwerrors.ErrPayloadTooLarge.WithMessage("Uploaded file is too large (limit %d bytes)", maxErr.Limit)
	}
	var ge *gwerrors.GatewayError
	if errors.As(err, &ge) {
		return err
	}
	// A malformed form is reported like a form without a file; the cause
	// stays in the error chain for the log line.
	return fmt.Errorf("%w: %v", gwerrors.ErrMissingFile, err)
}

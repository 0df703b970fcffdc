// Package handlers provides the HTTP handlers for the photo gateway's upload
// and listing operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	gwerrors "github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/errors"
	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/logging"
)

// ErrorBody is the JSON error body every failing operation returns:
// {"error": "<message>"}. It satisfies huma.StatusError so typed operations
// produce the same shape as plain handlers.
type ErrorBody struct {
	Status  int    `json:"-"`
	Message string `json:"error" doc:"Human-readable error message"`
}

// Error implements the error interface.
func (e *ErrorBody) Error() string {
	return e.Message
}

// GetStatus returns the HTTP status code.
func (e *ErrorBody) GetStatus() int {
	return e.Status
}

// NewErrorBody converts err to an ErrorBody, classifying it through the
// gateway error taxonomy.
func NewErrorBody(err error) *ErrorBody {
	var body *ErrorBody
	if errors.As(err, &body) {
		return body
	}
	ge := gwerrors.As(err)
	return &ErrorBody{Status: ge.HTTPStatus, Message: ge.Message}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err with the request's logger and writes it as an
// ErrorBody. 5xx responses are logged at error level, the rest at warn.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := NewErrorBody(err)
	logger := logging.FromContext(r.Context())
	if body.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", body.Status, "error", err)
	} else {
		logger.Warn("request rejected", "status", body.Status, "error", err)
	}
	writeJSON(w, body.Status, body)
}

// Package errors defines the error taxonomy returned by the photo gateway.
//
// Every operation error that reaches the HTTP boundary is a *GatewayError (or
// wraps one). The boundary maps it to a status code and a JSON body of the
// form {"error": "<message>"}.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// GatewayError is a classified gateway failure with a machine-readable code,
// the message shown to clients, and the HTTP status it maps to.
type GatewayError struct {
	// Code identifies the error class (e.g., "MissingFile", "StorageWriteError").
	Code string
	// Message is the human-readable description sent to the client.
	Message string
	// HTTPStatus is the status code written at the request boundary.
	HTTPStatus int

	cause error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *GatewayError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a GatewayError of the same class. This lets
// callers match wrapped copies against the package-level sentinels.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e that carries err as its cause. The client-facing
// message becomes the cause's message, matching how storage failures are
// reported verbatim.
func (e *GatewayError) Wrap(err error) *GatewayError {
	cp := *e
	cp.cause = err
	if err != nil {
		cp.Message = err.Error()
	}
	return &cp
}

// WithMessage returns a copy of e with a different client-facing message.
func (e *GatewayError) WithMessage(format string, args ...any) *GatewayError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Pre-defined gateway errors.
var (
	// ErrMissingFile is returned when an upload carries no "photo" file.
	ErrMissingFile = &GatewayError{
		Code:       "MissingFile",
		Message:    "No file uploaded",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInvalidVisibility is returned in strict mode for visibility values
	// other than "public" and "private".
	ErrInvalidVisibility = &GatewayError{
		Code:       "ValidationError",
		Message:    `visibility must be "public" or "private"`,
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrFieldTooLarge is returned when a text form field exceeds its limit.
	ErrFieldTooLarge = &GatewayError{
		Code:       "ValidationError",
		Message:    "Form field too large",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrPayloadTooLarge is returned when the request body exceeds the
	// configured upload limit.
	ErrPayloadTooLarge = &GatewayError{
		Code:       "PayloadTooLarge",
		Message:    "Uploaded file is too large",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	// ErrStorageWrite is returned when the object store rejects a write.
	ErrStorageWrite = &GatewayError{
		Code:       "StorageWriteError",
		Message:    "Failed to write object",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrStorageRead is returned when the object store cannot be enumerated.
	ErrStorageRead = &GatewayError{
		Code:       "StorageReadError",
		Message:    "Failed to list objects",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrObjectMetadata marks a failed per-object metadata fetch during a
	// listing. It is recovered locally and never reaches a client.
	ErrObjectMetadata = &GatewayError{
		Code:       "PerObjectMetadataError",
		Message:    "Failed to read object metadata",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrInternal is the fallback for unclassified failures.
	ErrInternal = &GatewayError{
		Code:       "InternalError",
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// As extracts the *GatewayError from err's chain. Unclassified errors are
// reported as ErrInternal wrapping err.
func As(err error) *GatewayError {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge
	}
	return ErrInternal.Wrap(err)
}

// StatusOf returns the HTTP status code err maps to.
func StatusOf(err error) int {
	return As(err).HTTPStatus
}

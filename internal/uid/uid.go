// Package uid provides unique identifiers for the photo gateway.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a 32-character lowercase hex identifier, used for staging
// file names.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

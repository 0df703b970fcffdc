package photo

import (
	"regexp"
	"strings"
	"time"

	gwerrors "github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/errors"
)

const (
	// VisibilityPublic marks an object as listable and addressable by its
	// unsigned URL.
	VisibilityPublic = "public"
	// VisibilityPrivate is the default for every other visibility input.
	VisibilityPrivate = "private"

	// VisibilityKey is the custom metadata key carrying the visibility tag.
	VisibilityKey = "visibility"

	// FallbackBase replaces an empty or blank caller-supplied name.
	FallbackBase = "photo"
	// FallbackExtension is used when the uploaded filename has none.
	FallbackExtension = "jpg"

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	unsafeRun          = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	timestampSeparator = strings.NewReplacer(":", "-", ".", "-")
)

// SanitizeName trims name and collapses every run of characters outside
// [A-Za-z0-9_-] into a single underscore. A blank name yields FallbackBase.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return FallbackBase
	}
	return unsafeRun.ReplaceAllString(name, "_")
}

// Timestamp renders t as a UTC ISO-8601 instant with millisecond precision,
// with ':' and '.' replaced by '-', e.g. 2026-10-19T08-15-30-123Z.
func Timestamp(t time.Time) string {
	return timestampSeparator.Replace(t.UTC().Format(timestampLayout))
}

// Extension returns the sanitized last dot-delimited segment of filename.
// Leading dots do not start an extension, so ".hidden" has none; neither do
// "blob" or "photo.". Those fall back to FallbackExtension.
func Extension(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimLeft(base, ".")
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return FallbackExtension
	}
	return unsafeRun.ReplaceAllString(base[i+1:], "_")
}

// ObjectName builds the stored object name:
// prefix + sanitized name + "_" + timestamp + "." + extension.
func ObjectName(prefix, name, filename string, now time.Time) string {
	return prefix + SanitizeName(name) + "_" + Timestamp(now) + "." + Extension(filename)
}

// ResolveVisibility maps the raw form value to the effective visibility.
// Only the exact string "public" is public. In strict mode values other than
// "", "public" and "private" are rejected.
func ResolveVisibility(raw string, strict bool) (string, error) {
	switch raw {
	case VisibilityPublic:
		return VisibilityPublic, nil
	case "", VisibilityPrivate:
		return VisibilityPrivate, nil
	}
	if strict {
		return "", gwerrors.ErrInvalidVisibility.WithMessage("visibility must be %q or %q, got %q", VisibilityPublic, VisibilityPrivate, raw)
	}
	return VisibilityPrivate, nil
}

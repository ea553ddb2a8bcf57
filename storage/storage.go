// Package storage persists uploaded profile photos.
package storage

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"
)

// PhotoStore saves, deletes and addresses stored photos by key.
type PhotoStore interface {
	Save(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
	Path(key string) string
}

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ExtensionFor maps an accepted image MIME type to its file extension.
// Unknown types map to "".
func ExtensionFor(contentType string) string {
	return photoExtensions[strings.ToLower(strings.TrimSpace(contentType))]
}

// PhotoKey builds "profile-<unix ms>-<random><ext>" with the extension taken
// from the content type, never from the client file name.
func PhotoKey(contentType string, now time.Time) string {
	return fmt.Sprintf("profile-%d-%d%s", now.UnixMilli(), rand.IntN(1_000_000_000), ExtensionFor(contentType))
}

// KeyFromReference accepts either a bare key or a URL/path ending in one.
func KeyFromReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

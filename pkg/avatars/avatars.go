// Package avatars validates uploaded avatar images and stores them in a
// local directory or an S3 bucket.
package avatars

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/google/uuid"
)

// DefaultMaxSize is the default upload limit (1 MiB).
const DefaultMaxSize int64 = 1 << 20

// KeyPrefix prefixes every avatar object key.
const KeyPrefix = "avatars/"

// Store persists avatar objects.
type Store interface {
	// Put writes the object and returns the URL it is served from.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// KeyFromURL maps a URL returned by Put back to its key.
	KeyFromURL(url string) (string, bool)
}

// ValidationError is returned for uploads that are not acceptable avatars.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Image describes a validated upload.
type Image struct {
	Format      string // "png", "jpeg" or "gif"
	Ext         string
	ContentType string
	Width       int
	Height      int
}

var formats = map[string]struct {
	ext         string
	contentType string
}{
	"png":  {".png", "image/png"},
	"jpeg": {".jpg", "image/jpeg"},
	"gif":  {".gif", "image/gif"},
}

// Validate checks an uploaded file against the size limit and the accepted
// image formats. A maxSize of zero or less means DefaultMaxSize.
func Validate(filename string, data []byte, maxSize int64) (*Image, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if filename == "" && len(data) == 0 {
		return nil, &ValidationError{Reason: "No avatar file provided"}
	}
	if int64(len(data)) > maxSize {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("Maximum size of avatar is %s", FormatSize(maxSize)),
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Reason: "Upload file must be an image (png, jpeg or gif)"}
	}
	f, ok := formats[format]
	if !ok {
		return nil, &ValidationError{Reason: "Upload file must be an image (png, jpeg or gif)"}
	}

	return &Image{
		Format:      format,
		Ext:         f.ext,
		ContentType: f.contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// NewKey returns a fresh object key for an image with the given extension.
func NewKey(ext string) string {
	return KeyPrefix + uuid.NewString() + ext
}

// FormatSize renders a byte count the way limits are shown to users.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

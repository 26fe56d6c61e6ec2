package avatars

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		wantFormat  string
		wantExt     string
		wantContent string
	}{
		{"png", pngBytes(t), "png", ".png", "image/png"},
		{"jpeg", jpegBytes(t), "jpeg", ".jpg", "image/jpeg"},
		{"gif", gifBytes(t), "gif", ".gif", "image/gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Validate("upload", tt.data, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, img.Format)
			assert.Equal(t, tt.wantExt, img.Ext)
			assert.Equal(t, tt.wantContent, img.ContentType)
			assert.Equal(t, 4, img.Width)
			assert.Equal(t, 3, img.Height)
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		maxSize  int64
		want     string
	}{
		{"no file", "", nil, 0, "No avatar file provided"},
		{"too large", "a.png", bytes.Repeat([]byte{0}, 2<<20), 0, "Maximum size of avatar is 1MB"},
		{"custom limit", "a.png", bytes.Repeat([]byte{0}, 600<<10), 512 << 10, "Maximum size of avatar is 512KB"},
		{"not an image", "a.txt", []byte("hello world"), 0, "Upload file must be an image (png, jpeg or gif)"},
		{"empty file", "a.png", []byte{}, 0, "Upload file must be an image (png, jpeg or gif)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.filename, tt.data, tt.maxSize)
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.want, ve.Reason)
		})
	}
}

func TestNewKey(t *testing.T) {
	a := NewKey(".png")
	b := NewKey(".png")
	assert.True(t, strings.HasPrefix(a, "avatars/"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.Len(t, a, len("avatars/")+36+len(".png"))
	assert.NotEqual(t, a, b)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "1MB", FormatSize(1<<20))
	assert.Equal(t, "5MB", FormatSize(5<<20))
	assert.Equal(t, "512KB", FormatSize(512<<10))
	assert.Equal(t, "1000 bytes", FormatSize(1000))
}

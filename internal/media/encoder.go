package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	// Frame decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP frames from the browser backend

	"lazythumb/internal/logging"
)

const (
	// DefaultQuality is the JPEG quality of generated thumbnails.
	DefaultQuality = 70
	// DefaultMaxWidth bounds thumbnail width; taller frames keep their aspect.
	DefaultMaxWidth = 480

	jpegDataURIPrefix = "data:image/jpeg;base64,"
)

// ErrEmptyImage is returned when encoding a zero-dimension frame.
var ErrEmptyImage = errors.New("media: empty image")

// Encoder turns a decoded frame into a thumbnail payload (a data URI).
type Encoder interface {
	Encode(img image.Image) (string, error)
}

// JPEGEncoder encodes frames as base64 JPEG data URIs with imaging.
type JPEGEncoder struct {
	Quality  int
	MaxWidth int
}

// NewJPEGEncoder returns an encoder with the default quality and width.
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{Quality: DefaultQuality, MaxWidth: DefaultMaxWidth}
}

// Encode implements Encoder.
func (e *JPEGEncoder) Encode(img image.Image) (string, error) {
	if IsEmpty(img) {
		return "", ErrEmptyImage
	}

	if e.MaxWidth > 0 && img.Bounds().Dx() > e.MaxWidth {
		img = imaging.Resize(img, e.MaxWidth, 0, imaging.Lanczos)
	}

	quality := e.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return DataURI(buf.Bytes()), nil
}

// DataURI wraps JPEG bytes in a data URI.
func DataURI(jpeg []byte) string {
	return jpegDataURIPrefix + base64.StdEncoding.EncodeToString(jpeg)
}

// ParseDataURI extracts the bytes and MIME type from a base64 data URI.
func ParseDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", errors.New("not a data URI")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data URI")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", errors.New("data URI is not base64 encoded")
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("data URI payload: %w", err)
	}
	return b, mime, nil
}

// DecodeFrame decodes PNG, JPEG, GIF or WebP bytes.
func DecodeFrame(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// NewEncoder returns the encoder named by kind ("imaging" or "vips").
// When libvips cannot start, the imaging encoder is used instead.
func NewEncoder(kind string) Encoder {
	fallback := NewJPEGEncoder()
	if kind != "vips" {
		return fallback
	}
	if err := InitVips(); err != nil {
		logging.Warn("libvips unavailable, falling back to imaging: %v", err)
		return fallback
	}
	return &VipsEncoder{Quality: DefaultQuality, MaxWidth: DefaultMaxWidth, Fallback: fallback}
}

// Package media prepares session thumbnails for upload.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"session-marketplace/internal/model"
)

const (
	DefaultMaxBytes = 10 << 20
	MaxDimension    = 1600
	JPEGQuality     = 85
	// MaxPixels bounds the decoded size of an upload.
	MaxPixels = 50_000_000
)

type Prepared struct {
	Filename    string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// PrepareImage checks that data is an accepted image no larger than
// maxBytes, scales it so neither side exceeds MaxDimension and re-encodes it
// as JPEG. maxBytes <= 0 means DefaultMaxBytes.
func PrepareImage(filename string, data []byte, maxBytes int64) (Prepared, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(data) == 0 {
		return Prepared{}, fmt.Errorf("%w: image is empty", model.ErrInvalidInput)
	}
	if int64(len(data)) > maxBytes {
		return Prepared{}, fmt.Errorf("%w: image is %d bytes, limit is %d", model.ErrInvalidInput, len(data), maxBytes)
	}

	contentType := DetectMIME(data)
	if !IsUploadMIME(contentType) {
		return Prepared{}, fmt.Errorf("%w: %s is not an accepted image type", model.ErrInvalidInput, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: decode %s: %v", model.ErrInvalidInput, contentType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Prepared{}, fmt.Errorf("%w: image is %dx%d pixels, limit is %d", model.ErrInvalidInput, cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: decode %s: %v", model.ErrInvalidInput, contentType, err)
	}

	dst := scale(src, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Prepared{}, fmt.Errorf("encode jpeg: %w", err)
	}
	if int64(buf.Len()) > maxBytes {
		return Prepared{}, fmt.Errorf("%w: encoded image is %d bytes, limit is %d", model.ErrInvalidInput, buf.Len(), maxBytes)
	}

	name, err := SanitizeFilename(filename)
	if err != nil {
		name = "thumbnail"
	}

	bounds := dst.Bounds()
	return Prepared{
		Filename:    jpegName(name),
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// scale fits src inside a size x size box on a white background.
func scale(src image.Image, size int) *image.RGBA {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	ratio := float64(size) / float64(max(width, height))
	if ratio > 1 {
		ratio = 1
	}

	targetWidth := max(int(math.Round(float64(width)*ratio)), 1)
	targetHeight := max(int(math.Round(float64(height)*ratio)), 1)

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func jpegName(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name + ".jpg"
}

// DetectMIME sniffs the content type from the leading bytes of data.
func DetectMIME(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}

// IsUploadMIME reports whether the storage endpoint accepts the type.
func IsUploadMIME(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

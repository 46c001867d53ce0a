// Package imaging validates uploaded images and downscales oversized ones.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const defaultJPEGQuality = 85

// ErrNotImage is returned when the upload cannot be decoded as an image.
var ErrNotImage = errors.New("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")

// ErrTooLarge is returned when the upload exceeds Options.MaxBytes.
var ErrTooLarge = errors.New("file too large")

// Options controls processing.
type Options struct {
	// MaxWidth downscales wider images to this width. Zero keeps the original.
	MaxWidth int
	// MaxBytes rejects larger uploads. Zero disables the check.
	MaxBytes int64
	// JPEGQuality is used when a resized image is re-encoded as JPEG.
	JPEGQuality int
}

// Result is a processed image ready for storage.
type Result struct {
	FileName string
	MimeType string
	Data     []byte
	Width    int
	Height   int
	Resized  bool
}

// Process decodes src and, when it is wider than opts.MaxWidth, scales it
// down. Images that need no resize are returned byte for byte.
func Process(src io.Reader, fileName string, opts Options) (*Result, error) {
	reader := src
	if opts.MaxBytes > 0 {
		reader = io.LimitReader(src, opts.MaxBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if opts.MaxBytes > 0 && int64(len(raw)) > opts.MaxBytes {
		return nil, ErrTooLarge
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrNotImage
	}

	res := &Result{
		FileName: fileName,
		MimeType: "image/" + format,
		Data:     raw,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}

	if opts.MaxWidth <= 0 || cfg.Width <= opts.MaxWidth {
		// Still decode fully so truncated files are rejected.
		if _, _, err := image.Decode(bytes.NewReader(raw)); err != nil {
			return nil, ErrNotImage
		}
		return res, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrNotImage
	}

	bounds := img.Bounds()
	newW := opts.MaxWidth
	newH := bounds.Dy() * newW / bounds.Dx()
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if format == "png" {
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		res.FileName = base + ".png"
		res.MimeType = "image/png"
	} else {
		quality := opts.JPEGQuality
		if quality <= 0 {
			quality = defaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		res.FileName = base + ".jpg"
		res.MimeType = "image/jpeg"
	}

	res.Data = buf.Bytes()
	res.Width = newW
	res.Height = newH
	res.Resized = true
	return res, nil
}

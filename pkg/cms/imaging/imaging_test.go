package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcess_KeepsSmallImage(t *testing.T) {
	data := pngBytes(t, 40, 20)

	res, err := Process(bytes.NewReader(data), "small.png", Options{MaxWidth: 100})
	require.NoError(t, err)

	assert.False(t, res.Resized)
	assert.Equal(t, data, res.Data)
	assert.Equal(t, "small.png", res.FileName)
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 20, res.Height)
}

func TestProcess_DownscalesWideImage(t *testing.T) {
	data := pngBytes(t, 200, 100)

	res, err := Process(bytes.NewReader(data), "wide.png", Options{MaxWidth: 50})
	require.NoError(t, err)

	assert.True(t, res.Resized)
	assert.Equal(t, 50, res.Width)
	assert.Equal(t, 25, res.Height)
	assert.Equal(t, "wide.png", res.FileName)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 50, cfg.Width)
}

func TestProcess_RejectsNonImage(t *testing.T) {
	_, err := Process(strings.NewReader("%PDF-1.4 not an image"), "doc.pdf", Options{})
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestProcess_RejectsTruncatedImage(t *testing.T) {
	data := pngBytes(t, 30, 30)
	_, err := Process(bytes.NewReader(data[:len(data)/2]), "broken.png", Options{})
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestProcess_EnforcesMaxBytes(t *testing.T) {
	data := pngBytes(t, 30, 30)
	_, err := Process(bytes.NewReader(data), "big.png", Options{MaxBytes: 10})
	assert.ErrorIs(t, err, ErrTooLarge)
}

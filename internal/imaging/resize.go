// Package imaging normalises uploaded photos with libvips (bimg).
package imaging

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"
)

const jpegQuality = 85

var ErrUnsupportedImage = errors.New("imaging: unsupported image type")

// Resizer converts uploads to JPEG no wider than MaxWidth.
type Resizer struct {
	MaxWidth int
}

func NewResizer(maxWidth int) *Resizer {
	return &Resizer{MaxWidth: maxWidth}
}

// Resize returns the JPEG encoding of data and its content type. Images
// narrower than MaxWidth keep their size; EXIF orientation is applied.
func (r *Resizer) Resize(data []byte) ([]byte, string, error) {
	img := bimg.NewImage(data)
	switch img.Type() {
	case "jpeg", "png", "webp", "gif", "heif":
	default:
		return nil, "", ErrUnsupportedImage
	}

	size, err := img.Size()
	if err != nil {
		return nil, "", fmt.Errorf("read image size: %w", err)
	}

	opts := bimg.Options{
		Type:          bimg.JPEG,
		Quality:       jpegQuality,
		StripMetadata: true,
	}
	if r.MaxWidth > 0 && size.Width > r.MaxWidth {
		opts.Width = r.MaxWidth
	}

	out, err := img.Process(opts)
	if err != nil {
		return nil, "", fmt.Errorf("process image: %w", err)
	}
	return out, "image/jpeg", nil
}

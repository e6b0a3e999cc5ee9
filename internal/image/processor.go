// Package image prepares vendor-uploaded product photos for public serving:
// metadata inspection, EXIF stripping, and downscaling of oversized uploads.
package image

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"
)

// ErrUnsupportedFormat is returned for anything that is not a JPEG, PNG,
// or WebP image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Allowed product photo formats, keyed by bimg's format name.
var allowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Meta describes an image without decoding its pixels.
type Meta struct {
	Width  int
	Height int
	Format string
}

// Options controls sanitization.
type Options struct {
	// Quality for lossy re-encoding (1-100).
	Quality int
	// MaxDimension caps the longest side; larger images are downscaled
	// preserving aspect ratio. Zero disables downscaling.
	MaxDimension int
}

// DefaultOptions returns the settings used for product photos.
func DefaultOptions() Options {
	return Options{
		Quality:      85,
		MaxDimension: 2048,
	}
}

// Inspect reads image dimensions and format without re-encoding. It rejects
// formats other than JPEG, PNG, and WebP.
func Inspect(data []byte) (Meta, error) {
	meta, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read image metadata: %w", err)
	}
	if !allowedFormats[meta.Type] {
		return Meta{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, meta.Type)
	}
	return Meta{
		Width:  meta.Size.Width,
		Height: meta.Size.Height,
		Format: meta.Type,
	}, nil
}

// Sanitize re-encodes a product photo in its original format with all
// EXIF metadata removed (GPS position, camera details, timestamps) and
// downscales it when it exceeds the configured maximum dimension. The
// EXIF orientation tag is applied before stripping so the pixels stay
// upright.
func Sanitize(data []byte, opts Options) ([]byte, error) {
	meta, err := Inspect(data)
	if err != nil {
		return nil, err
	}

	processOpts := bimg.Options{
		Quality:       opts.Quality,
		StripMetadata: true,
		Type:          formatType(meta.Format),
	}

	if opts.MaxDimension > 0 {
		if meta.Width > opts.MaxDimension && meta.Width >= meta.Height {
			processOpts.Width = opts.MaxDimension
		} else if meta.Height > opts.MaxDimension {
			processOpts.Height = opts.MaxDimension
		}
	}

	out, err := bimg.NewImage(data).Process(processOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to sanitize image: %w", err)
	}
	return out, nil
}

func formatType(format string) bimg.ImageType {
	switch format {
	case "jpeg":
		return bimg.JPEG
	case "png":
		return bimg.PNG
	case "webp":
		return bimg.WEBP
	default:
		return bimg.UNKNOWN
	}
}

package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ThumbnailOptions bounds the generated preview.
type ThumbnailOptions struct {
	Width   int
	Height  int
	Quality int // JPEG quality, 1-100
}

// DefaultThumbnailOptions is a 300x300 cover crop at quality 80.
func DefaultThumbnailOptions() ThumbnailOptions {
	return ThumbnailOptions{Width: 300, Height: 300, Quality: 80}
}

// Dimensions holds native pixel size. Nil fields mean unknown.
type Dimensions struct {
	Width  *int
	Height *int
}

// ImageDimensions reads the pixel size from the image header. Any failure
// yields unknown dimensions rather than an error.
func ImageDimensions(path string) Dimensions {
	f, err := os.Open(path)
	if err != nil {
		return Dimensions{}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Dimensions{}
	}
	w, h := cfg.Width, cfg.Height
	return Dimensions{Width: &w, Height: &h}
}

// GenerateThumbnail fills opts.Width x opts.Height from the center of the
// source image and writes it to dst as JPEG.
func GenerateThumbnail(src, dst string, opts ThumbnailOptions) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(src), err)
	}

	thumb := imaging.Fill(img, opts.Width, opts.Height, imaging.Center, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(opts.Quality)); err != nil {
		os.Remove(dst)
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}

// Thumbnailer derives dimensions and previews for image media. Failures are
// logged and reported as "no thumbnail", never as errors.
type Thumbnailer struct {
	opts   ThumbnailOptions
	logger *slog.Logger
}

// NewThumbnailer creates a Thumbnailer. Zero-valued options fall back to the
// defaults.
func NewThumbnailer(opts ThumbnailOptions, logger *slog.Logger) *Thumbnailer {
	def := DefaultThumbnailOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	return &Thumbnailer{opts: opts, logger: logger}
}

// Derive reads the dimensions of src and writes a thumbnail to dst. The
// returned path is nil when no thumbnail could be produced.
func (t *Thumbnailer) Derive(src, dst string) (Dimensions, *string) {
	dims := ImageDimensions(src)
	if dims.Width == nil {
		t.logger.Warn("image dimensions unavailable", "file", filepath.Base(src))
	}
	if err := GenerateThumbnail(src, dst, t.opts); err != nil {
		t.logger.Warn("thumbnail generation failed", "file", filepath.Base(src), "error", err)
		return dims, nil
	}
	return dims, &dst
}

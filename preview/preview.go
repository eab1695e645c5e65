// Package preview keeps a thumbnail of the most recently saved image on disk,
// standing in for the image pane of the interactive tool.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mhpenta/imagebatch/batch"
	"github.com/nfnt/resize"
)

// DefaultFilename is written inside the preview directory.
const DefaultFilename = "latest.png"

// DefaultMaxSize bounds the thumbnail's longer side, in pixels.
const DefaultMaxSize = 256

// Writer renders thumbnails. A decode failure is logged and skipped; preview
// never fails a run.
type Writer struct {
	path    string
	maxSize uint
	logger  *slog.Logger
}

// Ensure Writer implements batch.Reporter.
var _ batch.Reporter = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

// WithMaxSize sets the thumbnail bound.
func WithMaxSize(px uint) Option {
	return func(w *Writer) {
		if px > 0 {
			w.maxSize = px
		}
	}
}

// WithLogger sets the logger used for skipped previews.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// New returns a Writer that writes DefaultFilename inside dir.
func New(dir string, opts ...Option) *Writer {
	w := &Writer{
		path:    filepath.Join(dir, DefaultFilename),
		maxSize: DefaultMaxSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the thumbnail location.
func (w *Writer) Path() string {
	return w.path
}

// Show replaces the thumbnail with a scaled copy of data. name is the file
// the image was saved as and is only logged.
func (w *Writer) Show(name string, data []byte) error {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}

	thumb := resize.Thumbnail(w.maxSize, w.maxSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}

	// write to a temp file first so readers never see a partial image
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write thumbnail: %w", err)
	}

	w.logger.Debug("preview updated",
		"image", name,
		"path", w.path,
		"format", format,
		"width", thumb.Bounds().Dx(),
		"height", thumb.Bounds().Dy(),
	)
	return nil
}

func (w *Writer) Started(ctx context.Context, p batch.Progress) {}

// Saved shows the image that was just written.
func (w *Writer) Saved(ctx context.Context, out batch.Output, data []byte) {
	if err := w.Show(out.Path, data); err != nil {
		w.logger.Warn("preview skipped", "path", out.Path, "error", err.Error())
	}
}

func (w *Writer) Finished(ctx context.Context, summary *batch.Summary) {}

// Package album stores finished recordings and stills in a directory.
package album

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/panocam/internal/events"
)

// Sink receives finished media.
type Sink interface {
	SaveVideo(path string) error
	SaveImage(img image.Image) error
}

// Publisher receives saved-media events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Directory.
type Options struct {
	// Dir is the album directory, created if missing (required).
	Dir string

	// Quality is the JPEG quality for stills. Zero means 90.
	Quality int

	// Events receives PhotoSavedEvent (optional).
	Events Publisher

	// Logger for album operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Directory is a Sink writing into one directory. File names carry the
// save time and a random suffix so concurrent saves never collide.
type Directory struct {
	dir     string
	quality int
	bus     Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewDirectory creates the album directory if needed.
func NewDirectory(opts Options) (*Directory, error) {
	if opts.Dir == "" {
		return nil, errors.New("album directory not set")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create album directory: %w", err)
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		dir:     opts.Dir,
		quality: quality,
		bus:     opts.Events,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Dir returns the album directory.
func (d *Directory) Dir() string {
	return d.dir
}

// SaveVideo copies the finished file at path into the album. The source is
// left in place.
func (d *Directory) SaveVideo(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".mov"
	}
	dest := d.name("VID", ext)
	if err := d.writeAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	d.logger.Info("Recording saved to album", "path", dest)
	return nil
}

// SaveImage encodes img as JPEG into the album.
func (d *Directory) SaveImage(img image.Image) error {
	dest := d.name("IMG", ".jpg")
	if err := d.writeAtomic(dest, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: d.quality})
	}); err != nil {
		return fmt.Errorf("failed to save photo: %w", err)
	}

	b := img.Bounds()
	d.logger.Info("Photo saved to album", "path", dest, "width", b.Dx(), "height", b.Dy())
	if d.bus != nil {
		d.bus.Publish(events.PhotoSavedEvent{
			Path:      dest,
			Width:     b.Dx(),
			Height:    b.Dy(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

func (d *Directory) name(prefix, ext string) string {
	stamp := d.now().Format("20060102_150405")
	return filepath.Join(d.dir, fmt.Sprintf("%s_%s_%s%s", prefix, stamp, uuid.NewString()[:8], ext))
}

// writeAtomic writes through a temp file in the album directory and renames
// it into place, so readers never see a partial file.
func (d *Directory) writeAtomic(dest string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(d.dir, ".partial-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// Package camera provides frame sources and serialized access to them.
package camera

import (
	"context"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
)

// ErrNoFrame is returned when a source delivers nothing usable.
var ErrNoFrame = errors.New("camera returned no frame")

// Source produces frames on demand.
type Source interface {
	// Read captures a single fresh frame.
	Read(ctx context.Context) (*images.Frame, error)
	// Close releases the underlying device.
	Close() error
}

// Still is a Source that returns the same decoded image on every read.
// It stands in for a camera on machines without one.
type Still struct {
	frame *images.Frame
}

// OpenStill decodes the image at path once.
//
// Arguments:
//   - path: Path to a JPEG, PNG, GIF, TIFF or BMP file.
//
// Returns:
//   - *Still: The source.
//   - error: When the file cannot be opened or decoded.
func OpenStill(path string) (*Still, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	return NewStill(images.FrameFromImage(img)), nil
}

// NewStill wraps an existing frame.
func NewStill(frame *images.Frame) *Still {
	return &Still{frame: frame}
}

// Read returns a copy of the still frame so callers never share buffers.
func (s *Still) Read(ctx context.Context) (*images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.frame.Empty() {
		return nil, ErrNoFrame
	}

	f := *s.frame
	f.Pix = append([]uint8(nil), s.frame.Pix...)
	f.Float = append([]float32(nil), s.frame.Float...)
	return &f, nil
}

// Close is a no-op.
func (s *Still) Close() error {
	return nil
}

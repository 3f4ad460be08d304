package camera

import (
	"context"
	"time"

	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Guarded serializes access to a Source. At most one Read is in flight at a
// time; waiting callers give up when their context ends.
type Guarded struct {
	source Source
	logger *zap.Logger
	slot   chan struct{}
}

// NewGuarded wraps source with a single-slot lock.
func NewGuarded(source Source, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{
		source: source,
		logger: logger,
		slot:   make(chan struct{}, 1),
	}
}

// Capture acquires the device, reads one frame and releases the device.
//
// Arguments:
//   - ctx: Bounds the wait for the device as well as the read.
//
// Returns:
//   - *images.Frame: The captured frame, owned by the caller.
//   - error: The context error while waiting, or the read failure.
func (g *Guarded) Capture(ctx context.Context) (*images.Frame, error) {
	start := time.Now()
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for camera")
	}
	defer func() { <-g.slot }()

	wait := time.Since(start)
	frame, err := g.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	if frame.Empty() {
		return nil, ErrNoFrame
	}

	g.logger.Debug("frame captured",
		zap.Int("width", frame.Width),
		zap.Int("height", frame.Height),
		zap.Duration("wait", wait),
		zap.Duration("read", time.Since(start)-wait),
	)
	return frame, nil
}

// Close closes the underlying source once no capture is in flight.
func (g *Guarded) Close() error {
	g.slot <- struct{}{}
	defer func() { <-g.slot }()
	return g.source.Close()
}

// Package webcam reads frames from a local capture device through OpenCV.
package webcam

import (
	"context"
	"strconv"

	"github.com/nvr-ai/go-facedetect/camera"
	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// warmupFrames is how many frames Open may discard while waiting for the
// first non-empty one. Many devices deliver blank frames right after opening.
const warmupFrames = 5

// Config selects and configures the capture device.
type Config struct {
	// Device is a numeric device id ("0") or a device/file path.
	Device string
	// Width and Height request a capture resolution; 0 keeps the default.
	Width  int
	Height int
}

// matReader is the read side of gocv.VideoCapture.
type matReader interface {
	Read(m *gocv.Mat) bool
}

// Webcam is a camera.Source backed by gocv.VideoCapture. It is not safe for
// concurrent use; wrap it in camera.Guarded.
type Webcam struct {
	device  string
	capture *gocv.VideoCapture
	frames  matReader
	mat     gocv.Mat
	logger  *zap.Logger
}

var _ camera.Source = (*Webcam)(nil)

// Open opens the capture device and applies the requested resolution.
func Open(cfg Config, logger *zap.Logger) (*Webcam, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var device interface{} = cfg.Device
	if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture device %q", cfg.Device)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("capture device %q did not open", cfg.Device)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	logger.Info("camera opened",
		zap.String("device", cfg.Device),
		zap.Float64("width", capture.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", capture.Get(gocv.VideoCaptureFrameHeight)),
	)

	w := &Webcam{
		device:  cfg.Device,
		capture: capture,
		frames:  capture,
		mat:     gocv.NewMat(),
		logger:  logger,
	}
	w.warmup()
	return w, nil
}

// warmup discards blank frames delivered right after the device opens.
func (w *Webcam) warmup() {
	for i := 0; i < warmupFrames; i++ {
		if ok := w.frames.Read(&w.mat); !ok {
			break
		}
		if !w.mat.Empty() {
			return
		}
	}
	w.logger.Warn("camera delivered no frame during warm-up", zap.String("device", w.device))
}

// Read grabs one frame from the device as a BGR frame. An empty frame fails
// with camera.ErrNoFrame; the read is not repeated.
func (w *Webcam) Read(ctx context.Context) (*images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := w.frames.Read(&w.mat); !ok {
		return nil, errors.Errorf("cannot read device %s", w.device)
	}
	return FrameFromMat(w.mat)
}

// Close releases the capture handle and the reusable frame buffer.
func (w *Webcam) Close() error {
	return multierr.Combine(w.mat.Close(), w.capture.Close())
}

// FrameFromMat copies an 8-bit, 3-channel Mat into a BGR frame.
func FrameFromMat(mat gocv.Mat) (*images.Frame, error) {
	if mat.Empty() {
		return nil, camera.ErrNoFrame
	}
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Errorf("unsupported mat type %v with %d channels", mat.Type(), mat.Channels())
	}

	frame := images.NewFrame(mat.Cols(), mat.Rows(), images.ChannelOrderBGR)
	data, err := mat.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "mat data")
	}
	if len(data) < len(frame.Pix) {
		return nil, errors.Errorf("mat holds %d bytes, want %d", len(data), len(frame.Pix))
	}
	copy(frame.Pix, data)
	return frame, nil
}

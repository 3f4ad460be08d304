// Package detector runs the capture, encode, inference and decode stages for
// a single request.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/go-facedetect/images"
	"github.com/nvr-ai/go-facedetect/inference"
	"github.com/nvr-ai/go-facedetect/postprocess"
	"github.com/nvr-ai/go-facedetect/preprocess"
	"go.uber.org/zap"
)

// Capturer delivers one fresh frame per call. camera.Guarded implements it.
type Capturer interface {
	Capture(ctx context.Context) (*images.Frame, error)
}

// Config holds the per-request thresholds.
type Config struct {
	// ConfidenceThreshold is the exclusive minimum confidence of a detection.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// IoUThreshold is the overlap above which NMS suppresses a box.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// RescaleBoxes maps boxes from model input space to frame pixels.
	RescaleBoxes bool `json:"rescale_boxes" yaml:"rescale_boxes"`
}

// Timings records how long each stage of a request took.
type Timings struct {
	RequestID string
	Capture   time.Duration
	Encode    time.Duration
	Inference time.Duration
	Decode    time.Duration
	Total     time.Duration
}

// Result is the outcome of one successful request.
type Result struct {
	// Detections in descending confidence order.
	Detections []postprocess.Detection
	// Frame is the captured frame the detections refer to.
	Frame *images.Frame
	// Space is the width and height of the coordinate space of the boxes:
	// the frame size when boxes were rescaled, the model input size otherwise.
	Space image.Point
	// Timings of the request.
	Timings Timings
}

// Detector composes the pipeline stages. It keeps no per-request state and
// is safe for concurrent use; the camera and the engine serialize themselves.
type Detector struct {
	camera  Capturer
	encoder *preprocess.Preprocessor
	engine  inference.Engine
	decoder *postprocess.Decoder
	config  Config
	logger  *zap.Logger
}

// New creates a detector from its stages.
//
// Arguments:
//   - camera: The frame source.
//   - encoder: Converts frames into model input.
//   - engine: Runs the model.
//   - decoder: Turns model output into detections.
//   - config: Thresholds and coordinate handling.
//   - logger: Receives per-request timings at debug level.
//
// Returns:
//   - *Detector: The detector.
func New(
	camera Capturer,
	encoder *preprocess.Preprocessor,
	engine inference.Engine,
	decoder *postprocess.Decoder,
	config Config,
	logger *zap.Logger,
) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decoder == nil {
		decoder = &postprocess.Decoder{Logger: logger}
	}
	return &Detector{
		camera:  camera,
		encoder: encoder,
		engine:  engine,
		decoder: decoder,
		config:  config,
		logger:  logger,
	}
}

// Detect captures one frame and returns its detections. A failing stage ends
// the request with an *Error naming the stage; no partial result is returned.
func (d *Detector) Detect(ctx context.Context, requestID string) (*Result, error) {
	start := time.Now()
	timings := Timings{RequestID: requestID}

	frame, err := d.camera.Capture(ctx)
	timings.Capture = time.Since(start)
	if err != nil {
		return nil, &Error{Stage: StageCapture, Err: err}
	}

	mark := time.Now()
	input, err := d.encoder.Encode(frame)
	timings.Encode = time.Since(mark)
	if err != nil {
		return nil, &Error{Stage: StageEncode, Err: err}
	}

	mark = time.Now()
	output, err := d.engine.Infer(ctx, input)
	timings.Inference = time.Since(mark)
	if err != nil {
		return nil, &Error{Stage: StageInference, Err: err}
	}

	mark = time.Now()
	cfg := d.encoder.Config()
	space := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detections := d.decoder.Decode(output, d.config.ConfidenceThreshold, d.config.IoUThreshold)
	if d.config.RescaleBoxes {
		frameSize := image.Pt(frame.Width, frame.Height)
		detections = postprocess.Rescale(detections, space, frameSize)
		space = frameSize
		// Clamping to the frame can pull two survivors onto each other.
		detections = postprocess.ApplyNMS(detections, &postprocess.NMSConfig{
			IoUThreshold: d.config.IoUThreshold,
			ClassAware:   d.decoder.ClassAware,
		})
	}
	timings.Decode = time.Since(mark)
	timings.Total = time.Since(start)

	d.logTimings(timings, len(detections), frame)

	return &Result{
		Detections: detections,
		Frame:      frame,
		Space:      space,
		Timings:    timings,
	}, nil
}

func (d *Detector) logTimings(t Timings, n int, frame *images.Frame) {
	if ce := d.logger.Check(zap.DebugLevel, "request processed"); ce != nil {
		ce.Write(
			zap.String("request_id", t.RequestID),
			zap.Int("detections", n),
			zap.String("frame", images.ComputeFrameChecksum(frame)),
			zap.Duration("capture", t.Capture),
			zap.Duration("encode", t.Encode),
			zap.Duration("inference", t.Inference),
			zap.Duration("decode", t.Decode),
			zap.Duration("total", t.Total),
		)
	}
}

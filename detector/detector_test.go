package detector

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/nvr-ai/go-facedetect/images"
	"github.com/nvr-ai/go-facedetect/inference"
	"github.com/nvr-ai/go-facedetect/preprocess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"
)

type fakeCamera struct {
	frame *images.Frame
	err   error
}

func (c *fakeCamera) Capture(ctx context.Context) (*images.Frame, error) {
	return c.frame, c.err
}

type fakeEngine struct {
	delay  time.Duration
	output tensor.Tensor
	err    error
	inputs []tensor.Tensor
}

func (e *fakeEngine) Infer(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error) {
	e.inputs = append(e.inputs, input)
	time.Sleep(e.delay)
	return e.output, e.err
}

func (e *fakeEngine) Close() error { return nil }

func scenarioOutput() tensor.Tensor {
	// Columns are predictions: (10,10,4,4,.9) (10,10,4,4,.8) (100,100,4,4,.7).
	return tensor.New(tensor.WithShape(1, 5, 3), tensor.WithBacking([]float32{
		10, 10, 100,
		10, 10, 100,
		4, 4, 4,
		4, 4, 4,
		0.9, 0.8, 0.7,
	}))
}

func newDetector(cam Capturer, engine inference.Engine, cfg Config, logger *zap.Logger) *Detector {
	pcfg := preprocess.DefaultModelConfig()
	pcfg.InputWidth, pcfg.InputHeight = 160, 160
	return New(cam, preprocess.NewPreprocessor(pcfg), engine, nil, cfg, logger)
}

func TestDetect_Success(t *testing.T) {
	frame := images.NewFrame(320, 240, images.ChannelOrderBGR)
	engine := &fakeEngine{output: scenarioOutput()}
	core, logs := observer.New(zapcore.DebugLevel)

	d := newDetector(&fakeCamera{frame: frame}, engine, Config{ConfidenceThreshold: 0.5, IoUThreshold: 0.45}, zap.New(core))
	res, err := d.Detect(context.Background(), "req-1")
	require.NoError(t, err)

	require.Len(t, res.Detections, 2)
	assert.Equal(t, float32(0.9), res.Detections[0].Confidence)
	assert.Equal(t, float32(0.7), res.Detections[1].Confidence)
	assert.Equal(t, images.Rect{X1: 8, Y1: 8, X2: 12, Y2: 12}, res.Detections[0].Box)
	assert.Same(t, frame, res.Frame)
	assert.Equal(t, image.Pt(160, 160), res.Space)
	assert.Equal(t, "req-1", res.Timings.RequestID)
	assert.GreaterOrEqual(t, res.Timings.Total, res.Timings.Inference)

	require.Len(t, engine.inputs, 1)
	assert.Equal(t, tensor.Shape{1, 3, 160, 160}, engine.inputs[0].Shape())

	entries := logs.FilterMessage("request processed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestDetect_RescalesToFrame(t *testing.T) {
	frame := images.NewFrame(320, 240, images.ChannelOrderBGR)
	d := newDetector(
		&fakeCamera{frame: frame},
		&fakeEngine{output: scenarioOutput()},
		Config{ConfidenceThreshold: 0.5, IoUThreshold: 0.45, RescaleBoxes: true},
		nil,
	)

	res, err := d.Detect(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Detections, 2)
	// 160x160 model space onto 320x240 pixels.
	assert.Equal(t, images.Rect{X1: 16, Y1: 12, X2: 24, Y2: 18}, res.Detections[0].Box)
	assert.Equal(t, images.Rect{X1: 196, Y1: 147, X2: 204, Y2: 153}, res.Detections[1].Box)
	assert.Equal(t, image.Pt(320, 240), res.Space)
}

func TestDetect_ClampedBoxesAreSuppressedAgain(t *testing.T) {
	// (-140,20)-(20,60) at 0.9 and (0,20)-(20,60) at 0.8 overlap little in
	// model space but coincide once the first is clamped to the frame.
	output := tensor.New(tensor.WithShape(1, 5, 2), tensor.WithBacking([]float32{
		-60, 10,
		40, 40,
		160, 20,
		40, 40,
		0.9, 0.8,
	}))
	frame := images.NewFrame(160, 160, images.ChannelOrderBGR)
	cfg := Config{ConfidenceThreshold: 0.5, IoUThreshold: 0.45}

	raw, err := newDetector(&fakeCamera{frame: frame}, &fakeEngine{output: output}, cfg, nil).
		Detect(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, raw.Detections, 2)

	cfg.RescaleBoxes = true
	res, err := newDetector(&fakeCamera{frame: frame}, &fakeEngine{output: output}, cfg, nil).
		Detect(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, float32(0.9), res.Detections[0].Confidence)
	assert.Equal(t, images.Rect{X1: 0, Y1: 20, X2: 20, Y2: 60}, res.Detections[0].Box)

	for i := range res.Detections {
		for j := i + 1; j < len(res.Detections); j++ {
			assert.LessOrEqual(t, images.CalculateIoU(res.Detections[i].Box, res.Detections[j].Box), cfg.IoUThreshold)
		}
	}
}

func TestDetect_ShapeMismatchIsSuccess(t *testing.T) {
	rank2 := tensor.New(tensor.WithShape(5, 3), tensor.WithBacking(make([]float32, 15)))
	d := newDetector(
		&fakeCamera{frame: images.NewFrame(8, 8, images.ChannelOrderBGR)},
		&fakeEngine{output: rank2},
		Config{ConfidenceThreshold: 0.5, IoUThreshold: 0.45},
		nil,
	)

	res, err := d.Detect(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
}

func TestDetect_StageFailures(t *testing.T) {
	good := images.NewFrame(8, 8, images.ChannelOrderBGR)

	tests := []struct {
		name     string
		camera   *fakeCamera
		engine   inference.Engine
		stage    Stage
		sentinel error
		cause    error
	}{
		{
			name:     "capture",
			camera:   &fakeCamera{err: errors.New("no device")},
			engine:   &fakeEngine{output: scenarioOutput()},
			stage:    StageCapture,
			sentinel: ErrCapture,
		},
		{
			name:     "encode",
			camera:   &fakeCamera{frame: &images.Frame{Width: 8, Height: 8, Channels: 3}},
			engine:   &fakeEngine{output: scenarioOutput()},
			stage:    StageEncode,
			sentinel: ErrEncode,
			cause:    preprocess.ErrEmptyFrame,
		},
		{
			name:     "inference",
			camera:   &fakeCamera{frame: good},
			engine:   &fakeEngine{err: errors.New("bad model")},
			stage:    StageInference,
			sentinel: ErrInference,
		},
		{
			name:     "inference timeout",
			camera:   &fakeCamera{frame: good},
			engine:   inference.WithTimeout(&fakeEngine{delay: 100 * time.Millisecond, output: scenarioOutput()}, 5*time.Millisecond),
			stage:    StageInference,
			sentinel: ErrInference,
			cause:    inference.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetector(tt.camera, tt.engine, Config{ConfidenceThreshold: 0.5, IoUThreshold: 0.45}, nil)

			res, err := d.Detect(context.Background(), "")
			require.Error(t, err)
			assert.Nil(t, res)

			var stageErr *Error
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.True(t, errors.Is(err, tt.sentinel))
			if tt.cause != nil {
				assert.True(t, errors.Is(err, tt.cause), "got %v", err)
			}

			for _, other := range []error{ErrCapture, ErrEncode, ErrInference} {
				if other != tt.sentinel {
					assert.False(t, errors.Is(err, other))
				}
			}
		})
	}
}

func TestDetect_EncodeFailureSkipsInference(t *testing.T) {
	engine := &fakeEngine{output: scenarioOutput()}
	d := newDetector(&fakeCamera{frame: &images.Frame{Width: 2, Height: 2, Channels: 1, Pix: make([]uint8, 4)}}, engine, Config{}, nil)

	_, err := d.Detect(context.Background(), "")
	assert.True(t, errors.Is(err, ErrEncode))
	assert.True(t, errors.Is(err, preprocess.ErrUnsupportedFormat))
	assert.Empty(t, engine.inputs)
}

func TestError_Message(t *testing.T) {
	err := &Error{Stage: StageCapture, Err: errors.New("device busy")}
	assert.Equal(t, "capture: device busy", err.Error())
}

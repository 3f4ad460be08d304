// Package preprocess converts captured frames into model input tensors.
package preprocess

import (
	"runtime"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// ColorMode is the channel order the model was trained on.
	ColorMode images.ChannelOrder
	// Scale multiplies every sample.
	Scale float32
	// Offset is added to every scaled sample.
	Offset float32
	// Filter is the resampling kernel used to reach the input size.
	Filter images.Filter
	// Workers is the number of goroutines packing rows; <= 1 packs serially.
	Workers int
}

// DefaultModelConfig returns the configuration of a 640x640 RGB YOLO export
// normalized to [0, 1].
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Name:        "yolov8-face",
		InputWidth:  640,
		InputHeight: 640,
		ColorMode:   images.ChannelOrderRGB,
		Scale:       1.0 / 255.0,
		Offset:      0,
		Filter:      images.FilterBilinear,
		Workers:     runtime.GOMAXPROCS(0),
	}
}

// Preprocessor encodes frames for one model configuration. It holds no
// mutable state and is safe for concurrent use.
type Preprocessor struct {
	config ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
//
// @example
//
//	p := NewPreprocessor(DefaultModelConfig())
//	input, err := p.Encode(frame)
func NewPreprocessor(config ModelConfig) *Preprocessor {
	return &Preprocessor{config: config}
}

// Config returns the configuration the preprocessor was built with.
func (p *Preprocessor) Config() ModelConfig {
	return p.config
}

// Encode is shorthand for NewPreprocessor(config).Encode(frame).
func Encode(frame *images.Frame, config ModelConfig) (*tensor.Dense, error) {
	return NewPreprocessor(config).Encode(frame)
}

// Encode converts a frame into a float32 tensor of shape [1, 3, H, W].
//
// The frame is validated, resized to the model input size, swapped to the
// model's channel order, normalized with value*Scale + Offset and packed
// channel-first. The frame is never modified.
//
// Arguments:
// - frame: The captured frame.
//
// Returns:
// - The input tensor.
// - An *EncodeError when the frame cannot be encoded.
func (p *Preprocessor) Encode(frame *images.Frame) (*tensor.Dense, error) {
	cfg := p.config
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, errors.Errorf("invalid model input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}

	if err := validate(frame); err != nil {
		return nil, err
	}

	resized, err := images.Resize(frame, cfg.InputWidth, cfg.InputHeight, cfg.Filter)
	if err != nil {
		return nil, &EncodeError{Kind: UnsupportedFormat, Err: errors.Wrap(err, "resize")}
	}

	backing := make([]float32, 3*cfg.InputHeight*cfg.InputWidth)
	if err := p.pack(resized, frame.Order != cfg.ColorMode, backing); err != nil {
		return nil, err
	}

	return tensor.New(
		tensor.WithShape(1, 3, cfg.InputHeight, cfg.InputWidth),
		tensor.WithBacking(backing),
	), nil
}

func validate(frame *images.Frame) error {
	if frame == nil {
		return newError(EmptyFrame, "frame is nil")
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return newError(EmptyFrame, "invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	if frame.Len() == 0 {
		return newError(EmptyFrame, "frame has no samples")
	}
	if frame.Channels != 3 {
		return newError(UnsupportedFormat, "expected 3 channels, got %d", frame.Channels)
	}
	if frame.Order != images.ChannelOrderRGB && frame.Order != images.ChannelOrderBGR {
		return newError(UnsupportedFormat, "unknown channel order %s", frame.Order)
	}
	if frame.Depth != images.DepthUint8 && frame.Depth != images.DepthFloat32 {
		return newError(UnsupportedFormat, "unknown sample depth %s", frame.Depth)
	}
	if want := frame.Width * frame.Height * 3; frame.Len() != want {
		return newError(UnsupportedFormat, "frame holds %d samples, want %d", frame.Len(), want)
	}
	return nil
}

// pack writes the HWC frame into dst as CHW, splitting rows across workers.
func (p *Preprocessor) pack(frame *images.Frame, swap bool, dst []float32) error {
	workers := p.config.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > frame.Height {
		workers = frame.Height
	}

	if workers == 1 {
		return p.packRows(frame, swap, dst, 0, frame.Height)
	}

	var g errgroup.Group
	chunk := (frame.Height + workers - 1) / workers
	for start := 0; start < frame.Height; start += chunk {
		start, end := start, min(start+chunk, frame.Height)
		g.Go(func() error {
			return p.packRows(frame, swap, dst, start, end)
		})
	}
	return g.Wait()
}

func (p *Preprocessor) packRows(frame *images.Frame, swap bool, dst []float32, start, end int) error {
	width := frame.Width
	plane := frame.Width * frame.Height
	scale, offset := p.config.Scale, p.config.Offset

	// Destination plane c reads source channel src[c].
	src := [3]int{0, 1, 2}
	if swap {
		src = [3]int{2, 1, 0}
	}

	for y := start; y < end; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			for c := 0; c < 3; c++ {
				var sample float32
				if frame.Depth == images.DepthFloat32 {
					sample = frame.Float[i*3+src[c]]
				} else {
					sample = float32(frame.Pix[i*3+src[c]])
				}

				v := sample*scale + offset
				if math32.IsNaN(v) || math32.IsInf(v, 0) {
					return newError(InvalidValue, "sample at (%d, %d, %d) normalized to %v", x, y, c, v)
				}
				dst[c*plane+i] = v
			}
		}
	}
	return nil
}

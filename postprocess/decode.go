package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-facedetect/images"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Decoder turns a raw [1, F, N] prediction tensor into detections.
type Decoder struct {
	// Logger receives shape mismatch warnings. Nil disables logging.
	Logger *zap.Logger
	// ClassAware restricts suppression to detections of the same class.
	ClassAware bool
	// MaxDetections caps the number of returned detections; 0 is unlimited.
	MaxDetections int
}

// Decode runs a class-agnostic Decoder without logging.
func Decode(output tensor.Tensor, confThreshold, iouThreshold float32) []Detection {
	return (&Decoder{}).Decode(output, confThreshold, iouThreshold)
}

// Decode converts a raw model output into a confidence-ordered, suppressed
// set of detections.
//
// Every prediction is a column [cx, cy, w, h, score_0 .. score_k] of the
// feature-major output. The confidence is the best score and must be strictly
// greater than confThreshold. Survivors are converted to corner form and run
// through NMS with iouThreshold. A malformed output is a recoverable condition:
// it is logged and yields no detections.
//
// Arguments:
//   - output: The raw output tensor, float32, logical shape [1, F, N].
//   - confThreshold: Minimum (exclusive) confidence of a kept prediction.
//   - iouThreshold: Overlap above which a lower-confidence box is suppressed.
//
// Returns:
//   - []Detection: The detections in descending confidence order, never nil.
func (d *Decoder) Decode(output tensor.Tensor, confThreshold, iouThreshold float32) []Detection {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	data, features, predictions, ok := unpackOutput(output, logger)
	if !ok {
		return []Detection{}
	}

	candidates := make([]Detection, 0, 16)
	for j := 0; j < predictions; j++ {
		best, class := data[4*predictions+j], 0
		for f := 5; f < features; f++ {
			if score := data[f*predictions+j]; score > best || math32.IsNaN(best) {
				best, class = score, f-4
			}
		}
		if !(best > confThreshold) {
			continue
		}

		cx, cy := data[j], data[predictions+j]
		w, h := data[2*predictions+j], data[3*predictions+j]
		if !finite(best) || !finite(cx) || !finite(cy) || !finite(w) || !finite(h) {
			logger.Debug("dropping non-finite prediction", zap.Int("index", j))
			continue
		}

		candidates = append(candidates, Detection{
			Box:        images.RectFromCenter(cx, cy, w, h),
			Confidence: best,
			Class:      class,
		})
	}

	kept := ApplyNMS(candidates, &NMSConfig{IoUThreshold: iouThreshold, ClassAware: d.ClassAware})
	if d.MaxDetections > 0 && len(kept) > d.MaxDetections {
		kept = kept[:d.MaxDetections]
	}
	return kept
}

// unpackOutput validates the output and returns its backing data with the feature
// and prediction counts. For rank > 3 the last two axes of the first batch are
// used.
func unpackOutput(output tensor.Tensor, logger *zap.Logger) ([]float32, int, int, bool) {
	if output == nil {
		logger.Warn("shape mismatch: no output tensor")
		return nil, 0, 0, false
	}

	shape := output.Shape()
	if shape.Dims() < 3 {
		logger.Warn("shape mismatch: output rank below 3", zap.Ints("shape", shape))
		return nil, 0, 0, false
	}
	if output.Dtype() != tensor.Float32 {
		logger.Warn("shape mismatch: output is not float32",
			zap.Ints("shape", shape), zap.Stringer("dtype", output.Dtype()))
		return nil, 0, 0, false
	}

	f, n := shape[shape.Dims()-2], shape[shape.Dims()-1]
	if f < 5 || n < 1 {
		logger.Warn("shape mismatch: need at least 5 features and 1 prediction",
			zap.Ints("shape", shape), zap.Int("features", f), zap.Int("predictions", n))
		return nil, 0, 0, false
	}

	data, ok := output.Data().([]float32)
	if !ok || len(data) < f*n {
		logger.Warn("shape mismatch: output buffer shorter than shape",
			zap.Ints("shape", shape), zap.Int("len", len(data)))
		return nil, 0, 0, false
	}
	return data[:f*n], f, n, true
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

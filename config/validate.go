package config

import (
	"math"
	"strings"

	"github.com/nvr-ai/go-facedetect/images"
	"github.com/nvr-ai/go-facedetect/inference"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, errors.Errorf(format, args...))
		}
	}
	parse := func(e error, field string) {
		if e != nil {
			err = multierr.Append(err, errors.Wrap(e, field))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.ReadTimeout >= 0, "server.read_timeout must not be negative")
	check(c.Server.WriteTimeout >= 0, "server.write_timeout must not be negative")

	check(c.Camera.Device != "" || c.Camera.Image != "", "camera.device or camera.image is required")
	check(c.Camera.Width >= 0 && c.Camera.Height >= 0, "camera.width and camera.height must not be negative")

	m := c.Model
	check(m.Path != "", "model.path is required")
	check(m.InputWidth > 0 && m.InputHeight > 0, "model input size must be positive, got %dx%d", m.InputWidth, m.InputHeight)
	check(m.OutputFeatures >= 5, "model.output_features must be at least 5, got %d", m.OutputFeatures)
	check(m.OutputPredictions >= 1, "model.output_predictions must be at least 1, got %d", m.OutputPredictions)
	check(finite(m.Scale) && m.Scale != 0, "model.scale must be finite and non-zero")
	check(finite(m.Offset), "model.offset must be finite")
	check(m.Workers >= 0, "model.workers must not be negative")
	check(m.InferenceTimeout >= 0, "model.inference_timeout must not be negative")
	check(m.IntraOpThreads >= 0 && m.InterOpThreads >= 0, "model thread counts must not be negative")

	_, e := images.ParseChannelOrder(m.ColorMode)
	parse(e, "model.color_mode")
	_, e = images.ParseFilter(m.ResizeFilter)
	parse(e, "model.resize_filter")
	_, e = inference.ParseGraphOptimizationLevel(m.GraphOptimization)
	parse(e, "model.graph_optimization")
	_, e = inference.ParseProvider(m.ExecutionProvider)
	parse(e, "model.execution_provider")

	p := c.Postprocess
	check(p.ConfidenceThreshold >= 0 && p.ConfidenceThreshold <= 1, "postprocess.confidence_threshold must be in [0, 1]")
	check(p.IoUThreshold >= 0 && p.IoUThreshold <= 1, "postprocess.iou_threshold must be in [0, 1]")
	check(p.MaxDetections >= 0, "postprocess.max_detections must not be negative")

	s := c.Snapshot
	check(s.BlurSigma >= 0, "snapshot.blur_sigma must not be negative")
	check(s.JPEGQuality >= 1 && s.JPEGQuality <= 100, "snapshot.jpeg_quality must be in [1, 100]")
	check(s.WebPQuality >= 1 && s.WebPQuality <= 100, "snapshot.webp_quality must be in [1, 100]")

	if c.Log.Level != "" {
		_, e = zapcore.ParseLevel(c.Log.Level)
		parse(e, "log.level")
	}
	switch strings.ToLower(c.Log.Encoding) {
	case "", "console", "json":
	default:
		check(false, "log.encoding must be console or json, got %q", c.Log.Encoding)
	}

	return err
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

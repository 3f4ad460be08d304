// Package config loads and validates the service configuration.
package config

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/nvr-ai/go-facedetect/logging"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server      ServerConfig      `json:"server"      yaml:"server"`
	Camera      CameraConfig      `json:"camera"      yaml:"camera"`
	Model       ModelConfig       `json:"model"       yaml:"model"`
	Postprocess PostprocessConfig `json:"postprocess" yaml:"postprocess"`
	Snapshot    SnapshotConfig    `json:"snapshot"    yaml:"snapshot"`
	Log         logging.Config    `json:"log"         yaml:"log"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr         string        `json:"addr"          yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	// Device is a numeric capture device id or a device path.
	Device string `json:"device" yaml:"device"`
	// Width and Height request a capture resolution.
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// Image, when set, replaces the device with a still image file or a
	// directory of images replayed in order.
	Image string `json:"image" yaml:"image"`
}

// ModelConfig describes the model, its tensors and the input encoding.
type ModelConfig struct {
	Path              string        `json:"path"               yaml:"path"`
	LibraryPath       string        `json:"library_path"       yaml:"library_path"`
	InputWidth        int           `json:"input_width"        yaml:"input_width"`
	InputHeight       int           `json:"input_height"       yaml:"input_height"`
	InputName         string        `json:"input_name"         yaml:"input_name"`
	OutputName        string        `json:"output_name"        yaml:"output_name"`
	OutputFeatures    int           `json:"output_features"    yaml:"output_features"`
	OutputPredictions int           `json:"output_predictions" yaml:"output_predictions"`
	Scale             float32       `json:"scale"              yaml:"scale"`
	Offset            float32       `json:"offset"             yaml:"offset"`
	ColorMode         string        `json:"color_mode"         yaml:"color_mode"`
	ResizeFilter      string        `json:"resize_filter"      yaml:"resize_filter"`
	RescaleBoxes      bool          `json:"rescale_boxes"      yaml:"rescale_boxes"`
	Workers           int           `json:"workers"            yaml:"workers"`
	InferenceTimeout  time.Duration `json:"inference_timeout"  yaml:"inference_timeout"`
	IntraOpThreads    int           `json:"intra_op_threads"   yaml:"intra_op_threads"`
	InterOpThreads    int           `json:"inter_op_threads"   yaml:"inter_op_threads"`
	GraphOptimization string        `json:"graph_optimization" yaml:"graph_optimization"`
	ExecutionProvider string        `json:"execution_provider" yaml:"execution_provider"`
}

// PostprocessConfig holds the decoder thresholds.
type PostprocessConfig struct {
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	IoUThreshold        float32 `json:"iou_threshold"        yaml:"iou_threshold"`
	ClassAware          bool    `json:"class_aware"          yaml:"class_aware"`
	MaxDetections       int     `json:"max_detections"       yaml:"max_detections"`
}

// SnapshotConfig controls the anonymized snapshot endpoint.
type SnapshotConfig struct {
	BlurSigma   float64 `json:"blur_sigma"   yaml:"blur_sigma"`
	JPEGQuality int     `json:"jpeg_quality" yaml:"jpeg_quality"`
	WebPQuality int     `json:"webp_quality" yaml:"webp_quality"`
}

// Default returns the configuration of a 640x640 single-class YOLO face model
// on capture device 0.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Camera: CameraConfig{
			Device: "0",
			Width:  640,
			Height: 480,
		},
		Model: ModelConfig{
			Path:              "models/yolov8n-face.onnx",
			InputWidth:        640,
			InputHeight:       640,
			InputName:         "images",
			OutputName:        "output0",
			OutputFeatures:    5,
			OutputPredictions: 8400,
			Scale:             1.0 / 255.0,
			Offset:            0,
			ColorMode:         "rgb",
			ResizeFilter:      "bilinear",
			RescaleBoxes:      true,
			Workers:           runtime.GOMAXPROCS(0),
			InferenceTimeout:  5 * time.Second,
			IntraOpThreads:    4,
			InterOpThreads:    1,
			GraphOptimization: "all",
			ExecutionProvider: "cpu",
		},
		Postprocess: PostprocessConfig{
			ConfidenceThreshold: 0.5,
			IoUThreshold:        0.45,
		},
		Snapshot: SnapshotConfig{
			BlurSigma:   12,
			JPEGQuality: 90,
			WebPQuality: 80,
		},
		Log: logging.Config{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result. Unknown
// keys are rejected.
//
// Arguments:
//   - path: The YAML file; empty returns the validated defaults.
//
// Returns:
//   - Config: The merged configuration.
//   - error: When the file cannot be read or parsed, or the result is invalid.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}

	if err := Decode(data, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Decode parses YAML into cfg, keeping the values of absent keys.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, "failed to parse config")
	}
	return nil
}

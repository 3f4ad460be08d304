package config

import (
	"github.com/nvr-ai/go-facedetect/detector"
	"github.com/nvr-ai/go-facedetect/images"
	"github.com/nvr-ai/go-facedetect/inference"
	"github.com/nvr-ai/go-facedetect/postprocess"
	"github.com/nvr-ai/go-facedetect/preprocess"
	"go.uber.org/zap"
)

// PreprocessConfig returns the encoder configuration of the model section.
func (c Config) PreprocessConfig() (preprocess.ModelConfig, error) {
	order, err := images.ParseChannelOrder(c.Model.ColorMode)
	if err != nil {
		return preprocess.ModelConfig{}, err
	}
	filter, err := images.ParseFilter(c.Model.ResizeFilter)
	if err != nil {
		return preprocess.ModelConfig{}, err
	}
	return preprocess.ModelConfig{
		Name:        c.Model.Path,
		InputWidth:  c.Model.InputWidth,
		InputHeight: c.Model.InputHeight,
		ColorMode:   order,
		Scale:       c.Model.Scale,
		Offset:      c.Model.Offset,
		Filter:      filter,
		Workers:     c.Model.Workers,
	}, nil
}

// SessionConfig returns the ONNX session binding of the model section.
func (c Config) SessionConfig() (inference.SessionConfig, error) {
	level, err := inference.ParseGraphOptimizationLevel(c.Model.GraphOptimization)
	if err != nil {
		return inference.SessionConfig{}, err
	}
	provider, err := inference.ParseProvider(c.Model.ExecutionProvider)
	if err != nil {
		return inference.SessionConfig{}, err
	}

	opt := inference.DefaultOptimizationConfig()
	opt.GraphOptimizationLevel = level
	opt.IntraOpNumThreads = c.Model.IntraOpThreads
	opt.InterOpNumThreads = c.Model.InterOpThreads
	opt.Provider = provider

	return inference.SessionConfig{
		ModelPath:    c.Model.Path,
		InputName:    c.Model.InputName,
		OutputName:   c.Model.OutputName,
		InputShape:   []int64{1, 3, int64(c.Model.InputHeight), int64(c.Model.InputWidth)},
		OutputShape:  []int64{1, int64(c.Model.OutputFeatures), int64(c.Model.OutputPredictions)},
		Optimization: opt,
	}, nil
}

// DetectorConfig returns the per-request thresholds.
func (c Config) DetectorConfig() detector.Config {
	return detector.Config{
		ConfidenceThreshold: c.Postprocess.ConfidenceThreshold,
		IoUThreshold:        c.Postprocess.IoUThreshold,
		RescaleBoxes:        c.Model.RescaleBoxes,
	}
}

// Decoder returns a decoder configured by the postprocess section.
func (c Config) Decoder(logger *zap.Logger) *postprocess.Decoder {
	return &postprocess.Decoder{
		Logger:        logger,
		ClassAware:    c.Postprocess.ClassAware,
		MaxDetections: c.Postprocess.MaxDetections,
	}
}

package inference

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Provider represents an ONNX Runtime execution provider.
type Provider string

const (
	// CPUExecutionProvider uses the default CPU kernels.
	CPUExecutionProvider Provider = "cpu"
	// CoreMLExecutionProvider uses Apple CoreML for macOS acceleration.
	CoreMLExecutionProvider Provider = "coreml"
	// OpenVINOExecutionProvider uses Intel OpenVINO for inference optimization.
	OpenVINOExecutionProvider Provider = "openvino"
)

// ParseProvider parses a provider name; the empty string selects the CPU.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CPUExecutionProvider, nil
	case CPUExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported execution provider %q", s)
	}
}

// ParseGraphOptimizationLevel maps "disable", "basic", "extended" and "all"
// onto ONNX Runtime levels. The empty string selects "all".
func ParseGraphOptimizationLevel(s string) (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable", "disabled", "none":
		return ort.GraphOptimizationLevelDisableAll, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "extended":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "", "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level %q", s)
	}
}

// OptimizationConfig contains the ONNX Runtime session tuning knobs.
type OptimizationConfig struct {
	// GraphOptimizationLevel controls the level of graph optimization
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level"`

	// ExecutionMode controls sequential vs parallel execution
	ExecutionMode ort.ExecutionMode `json:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops; 0 lets the runtime decide
	IntraOpNumThreads int `json:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops; 0 lets the runtime decide
	InterOpNumThreads int `json:"inter_op_num_threads"`

	// Provider is the accelerator to append before the CPU fallback
	Provider Provider `json:"provider"`
}

// DefaultOptimizationConfig returns full graph optimization, sequential
// execution and four intra-op threads.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableAll,
		ExecutionMode:          ort.ExecutionModeSequential,
		IntraOpNumThreads:      min(4, runtime.NumCPU()),
		InterOpNumThreads:      1,
		Provider:               CPUExecutionProvider,
	}
}

// OptimizedSessionOptions applies an OptimizationConfig to new session options.
//
// Arguments:
//   - config: Optimization configuration to apply
//   - logger: Receives a warning when an accelerator is unavailable
//
// Returns:
//   - *ort.SessionOptions: Configured session options, to be destroyed by the caller
//   - error: Configuration error if any
//
// @example
// options, err := OptimizedSessionOptions(DefaultOptimizationConfig(), logger)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer options.Destroy()
func OptimizedSessionOptions(config OptimizationConfig, logger *zap.Logger) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	setters := []struct {
		name string
		fn   func() error
	}{
		{"graph optimization level", func() error { return options.SetGraphOptimizationLevel(config.GraphOptimizationLevel) }},
		{"execution mode", func() error { return options.SetExecutionMode(config.ExecutionMode) }},
		{"intra-op threads", func() error { return options.SetIntraOpNumThreads(config.IntraOpNumThreads) }},
		{"inter-op threads", func() error { return options.SetInterOpNumThreads(config.InterOpNumThreads) }},
	}
	for _, s := range setters {
		if err := s.fn(); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "failed to set %s", s.name)
		}
	}

	if err := applyExecutionProvider(options, config.Provider, logger); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

// applyExecutionProvider appends an accelerator. An accelerator the runtime
// was not built with is logged and skipped; the CPU kernels remain.
func applyExecutionProvider(options *ort.SessionOptions, provider Provider, logger *zap.Logger) error {
	var err error
	switch provider {
	case CPUExecutionProvider, "":
		return nil
	case CoreMLExecutionProvider:
		err = options.AppendExecutionProviderCoreML(0)
	case OpenVINOExecutionProvider:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	default:
		return fmt.Errorf("unsupported execution provider: %s", provider)
	}

	if err != nil {
		logger.Warn("execution provider unavailable, using CPU",
			zap.String("provider", string(provider)), zap.Error(err))
	}
	return nil
}

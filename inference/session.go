// Package inference - Inference sessions.
package inference

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// ErrInputShape is returned when an input does not match the bound tensor.
var ErrInputShape = errors.New("input tensor shape mismatch")

// SessionConfig describes the model and the tensors bound to it.
type SessionConfig struct {
	// ModelPath is the path of the ONNX model file.
	ModelPath string `json:"model_path"`
	// InputName is the model input to bind; empty selects the first input.
	InputName string `json:"input_name"`
	// OutputName is the model output to bind; empty selects the first output.
	OutputName string `json:"output_name"`
	// InputShape is the bound input shape, [1, 3, H, W].
	InputShape []int64 `json:"input_shape"`
	// OutputShape is the bound output shape, [1, F, N].
	OutputShape []int64 `json:"output_shape"`
	// Optimization tunes the runtime session.
	Optimization OptimizationConfig `json:"optimization"`
}

// Session runs an ONNX model through an ort.AdvancedSession with pre-bound
// input and output tensors. Runs are serialized because the bound buffers are
// shared between calls.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	logger  *zap.Logger

	mu    sync.Mutex
	stats Stats
}

var (
	_ Engine        = (*Session)(nil)
	_ StatsReporter = (*Session)(nil)
)

// NewSession creates a session for the configured model. InitializeRuntime
// must have been called.
//
// Arguments:
//   - config: The model and tensor binding configuration.
//   - logger: The session logger.
//
// Returns:
//   - *Session: Wrapped Session struct that holds the native session and tensors for inference.
//   - error: An error if the session creation fails.
func NewSession(config SessionConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !ort.IsInitialized() {
		return nil, errors.New("ONNX Runtime environment is not initialized")
	}

	inputName, outputName, err := resolveNames(config)
	if err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(config.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(config.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := OptimizedSessionOptions(config.Optimization, logger)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", config.ModelPath)
	}

	logger.Info("model loaded",
		zap.String("path", config.ModelPath),
		zap.String("input", inputName),
		zap.Int64s("input_shape", config.InputShape),
		zap.String("output", outputName),
		zap.Int64s("output_shape", config.OutputShape),
		zap.String("provider", string(config.Optimization.Provider)),
	)

	return &Session{
		session: session,
		input:   input,
		output:  output,
		logger:  logger,
	}, nil
}

// resolveNames checks the configured tensor names against the model and
// fills in the first input/output when a name is left empty.
func resolveNames(config SessionConfig) (string, string, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "error reading model %s", config.ModelPath)
	}

	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	outNames := make([]string, len(outputs))
	for i, out := range outputs {
		outNames[i] = out.Name
	}

	inputName, err := pickName(config.InputName, inNames)
	if err != nil {
		return "", "", errors.Wrap(err, "input")
	}
	outputName, err := pickName(config.OutputName, outNames)
	if err != nil {
		return "", "", errors.Wrap(err, "output")
	}
	return inputName, outputName, nil
}

func pickName(want string, names []string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("model declares no tensors")
	}
	if want == "" {
		return names[0], nil
	}
	for _, n := range names {
		if n == want {
			return n, nil
		}
	}
	return "", errors.Errorf("model has no tensor %q (have %v)", want, names)
}

// Infer copies input into the bound tensor, runs the model and returns a copy
// of the output as a [1, F, N] tensor.
func (s *Session) Infer(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The caller may have given up while another run held the lock.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	data, err := inputData(input, s.input.GetShape())
	if err != nil {
		return nil, err
	}

	copy(s.input.GetData(), data)

	start := time.Now()
	if err := s.session.Run(); err != nil {
		s.stats.Failures++
		return nil, errors.Wrap(err, "failed to run inference")
	}
	elapsed := time.Since(start)
	s.stats.Runs++
	s.stats.TotalTime += elapsed
	s.stats.LastTime = elapsed

	out := make([]float32, len(s.output.GetData()))
	copy(out, s.output.GetData())

	shape := s.output.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}

	s.logger.Debug("inference complete", zap.Duration("elapsed", elapsed))
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(out)), nil
}

// inputData returns the float32 samples of input after checking its shape
// against the bound tensor.
func inputData(input tensor.Tensor, want ort.Shape) ([]float32, error) {
	if input == nil {
		return nil, errors.Wrap(ErrInputShape, "no input tensor")
	}
	if input.Dtype() != tensor.Float32 {
		return nil, errors.Wrapf(ErrInputShape, "dtype %s, want float32", input.Dtype())
	}

	got := input.Shape()
	if len(got) != len(want) {
		return nil, errors.Wrapf(ErrInputShape, "got %v, want %v", got, want)
	}
	for i := range got {
		if int64(got[i]) != want[i] {
			return nil, errors.Wrapf(ErrInputShape, "got %v, want %v", got, want)
		}
	}

	data, ok := input.Data().([]float32)
	if !ok || int64(len(data)) != want.FlattenedSize() {
		return nil, errors.Wrapf(ErrInputShape, "got %d samples, want %d", len(data), want.FlattenedSize())
	}
	return data, nil
}

// Stats returns a snapshot of the run counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases the native session and its tensors.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		err = multierr.Append(err, s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		err = multierr.Append(err, s.output.Destroy())
		s.output = nil
	}
	return err
}

// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrTimeout is returned when an inference call exceeds its deadline.
var ErrTimeout = errors.New("inference timed out")

// Engine runs a model on a single input tensor.
type Engine interface {
	// Infer runs the model on input and returns the raw output tensor.
	Infer(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error)
	// Close releases the model.
	Close() error
}

// Stats summarizes the calls an engine has served.
type Stats struct {
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	TotalTime time.Duration `json:"total_time_ns"`
	LastTime  time.Duration `json:"last_time_ns"`
}

// Average returns the mean duration of a successful run.
func (s Stats) Average() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Runs)
}

// StatsReporter is implemented by engines that track their runs.
type StatsReporter interface {
	Stats() Stats
}

type timeoutEngine struct {
	Engine
	timeout time.Duration
}

// WithTimeout bounds every Infer call on engine by d. When the deadline passes
// first, Infer returns ErrTimeout and the result of the in-flight call is
// discarded once it completes. d <= 0 returns engine unchanged.
//
// Arguments:
//   - engine: The engine to wrap.
//   - d: The per-call deadline.
//
// Returns:
//   - Engine: The wrapped engine.
func WithTimeout(engine Engine, d time.Duration) Engine {
	if d <= 0 {
		return engine
	}
	return &timeoutEngine{Engine: engine, timeout: d}
}

type inferResult struct {
	output tensor.Tensor
	err    error
}

func (e *timeoutEngine) Infer(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan inferResult, 1)
	go func() {
		out, err := e.Engine.Infer(ctx, input)
		done <- inferResult{output: out, err: err}
	}()

	select {
	case r := <-done:
		return r.output, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "after %s", e.timeout)
		}
		return nil, ctx.Err()
	}
}

// Stats forwards to the wrapped engine when it tracks runs.
func (e *timeoutEngine) Stats() Stats {
	if r, ok := e.Engine.(StatsReporter); ok {
		return r.Stats()
	}
	return Stats{}
}

package detector

import "github.com/pkg/errors"

// Stage names a pipeline stage.
type Stage string

// Pipeline stages that can fail a request.
const (
	StageCapture   Stage = "capture"
	StageEncode    Stage = "encode"
	StageInference Stage = "inference"
)

// Sentinels matched by errors.Is against an *Error of the same stage.
var (
	ErrCapture   = errors.New("capture failed")
	ErrEncode    = errors.New("encode failed")
	ErrInference = errors.New("inference failed")
)

// Error is a request failure attributed to one stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's stage.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCapture:
		return e.Stage == StageCapture
	case ErrEncode:
		return e.Stage == StageEncode
	case ErrInference:
		return e.Stage == StageInference
	}
	return false
}

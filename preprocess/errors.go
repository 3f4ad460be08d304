package preprocess

import "fmt"

// ErrorKind classifies why a frame could not be encoded.
type ErrorKind int

const (
	// EmptyFrame means the frame has no pixels.
	EmptyFrame ErrorKind = iota + 1
	// UnsupportedFormat means the channel count, depth, order or buffer
	// length cannot be encoded.
	UnsupportedFormat
	// InvalidValue means normalization produced a non-finite value.
	InvalidValue
)

func (k ErrorKind) String() string {
	switch k {
	case EmptyFrame:
		return "empty frame"
	case UnsupportedFormat:
		return "unsupported format"
	case InvalidValue:
		return "invalid value"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is against an *EncodeError.
var (
	ErrEmptyFrame        = &EncodeError{Kind: EmptyFrame}
	ErrUnsupportedFormat = &EncodeError{Kind: UnsupportedFormat}
	ErrInvalidValue      = &EncodeError{Kind: InvalidValue}
)

// EncodeError is returned by the encoder for every rejected frame.
type EncodeError struct {
	Kind ErrorKind
	Err  error
}

func (e *EncodeError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Is matches any EncodeError of the same kind.
func (e *EncodeError) Is(target error) bool {
	t, ok := target.(*EncodeError)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) error {
	return &EncodeError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

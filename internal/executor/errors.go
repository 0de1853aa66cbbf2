package executor

import "fmt"

// TypeError reports an argument/parameter incompatibility, a wrong
// placement, a wrong all_equal flag, or a wrong structural shape.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return e.Msg }

// Typef builds a TypeError.
func Typef(format string, args ...any) error {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

// CardinalityError reports a non-all-equal CLIENTS payload whose length
// does not match the resolved participant count.
type CardinalityError struct {
	Want int
	Got  int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("expected %d client values, got %d", e.Want, e.Got)
}

// UnsupportedError reports a recognized but unhandled payload kind or a
// malformed structural request.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string { return e.Msg }

// Unsupportedf builds an UnsupportedError.
func Unsupportedf(format string, args ...any) error {
	return &UnsupportedError{Msg: fmt.Sprintf(format, args...)}
}

// NotImplementedError reports an operator with no registered protocol.
type NotImplementedError struct {
	URI string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("intrinsic %q is not implemented", e.URI)
}

package reasoning

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the reasoning client. Both ErrTransport and
// ErrParse failures also match ErrFailure: callers that only need to know
// "no verdict is available" test for ErrFailure.
var (
	ErrFailure   = errors.New("reasoning failure")
	ErrTransport = errors.New("transport failure")
	ErrParse     = errors.New("parse failure")
)

// Failure is the outcome of a GetVerdict call that produced no verdict.
type Failure struct {
	Kind     error  // ErrTransport or ErrParse
	FrameID  string // frame the verdict was requested for
	Attempts int    // transport attempts made
	Raw      string // offending reply text, set for parse failures
	Err      error  // underlying cause
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("frame %s: %v after %d attempt(s)", f.FrameID, f.Kind, f.Attempts)
	}
	return fmt.Sprintf("frame %s: %v after %d attempt(s): %v", f.FrameID, f.Kind, f.Attempts, f.Err)
}

// Unwrap exposes ErrFailure, the kind and the cause to errors.Is / errors.As.
func (f *Failure) Unwrap() []error {
	errs := []error{ErrFailure}
	if f.Kind != nil {
		errs = append(errs, f.Kind)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// KindName returns "transport", "parse" or "" for err. It is used to tag
// diagnostics and evidence records.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrParse):
		return "parse"
	case err != nil:
		return "unknown"
	default:
		return ""
	}
}

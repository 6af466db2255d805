package matcher

import "fmt"

// CompileError reports a pattern that failed to compile, carrying the
// origin recorded in the Pattern so callers can emit a file:line:message
// diagnostic for patterns that came from -f files.
type CompileError struct {
	Pattern Pattern
	Err     error
}

func (e *CompileError) Error() string {
	if e.Pattern.File != "" {
		return fmt.Sprintf("%s:%d: %v", e.Pattern.File, e.Pattern.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

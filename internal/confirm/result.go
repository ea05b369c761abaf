package confirm

import "fmt"

// Result is the outcome of a confirmation request.
type Result string

// Confirmation outcomes. The coordinator assigns no semantics to the
// distinction between ResultApproved and ResultAllowOnce; policy
// interpretation (remember vs. this call only) belongs to the caller.
const (
	ResultApproved  Result = "approved"
	ResultAllowOnce Result = "allow_once"
	ResultDenied    Result = "denied"
)

// Valid reports whether r is one of the three known outcomes.
func (r Result) Valid() bool {
	switch r {
	case ResultApproved, ResultAllowOnce, ResultDenied:
		return true
	}
	return false
}

// Allowed reports whether r permits the tool invocation to proceed.
func (r Result) Allowed() bool {
	return r == ResultApproved || r == ResultAllowOnce
}

// ParseResult converts a wire/CLI string into a Result.
// The empty string defaults to ResultAllowOnce.
func ParseResult(s string) (Result, error) {
	if s == "" {
		return ResultAllowOnce, nil
	}
	r := Result(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownResult, s)
	}
	return r, nil
}

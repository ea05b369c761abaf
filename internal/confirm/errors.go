package confirm

import "errors"

// ErrUnknownResult is returned when parsing a result string that is not
// one of approved, allow_once, or denied.
var ErrUnknownResult = errors.New("unknown confirmation result")

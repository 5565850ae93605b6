package hunter

import "fmt"

// UnsupportedTypeError reports a mission type the engine cannot dispatch.
// Types are validated at creation, so hitting this at evaluation time is
// a configuration or programming error.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no extractor for mission type %q", e.Type)
}

// FetchError reports a failed retrieval of the mission target: network
// failure, timeout, or a non-2xx status. Recoverable: the next
// scheduled cycle is the retry.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransformError reports a replacement rule that failed to compile at
// evaluation time. Rules are validated at creation, so this only
// happens for rows written outside the API; the evaluation fails
// closed rather than reporting a false change.
type TransformError struct {
	Source string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform rule %q: %v", e.Source, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

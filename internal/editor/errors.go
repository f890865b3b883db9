package editor

import "fmt"

// ValidationError is a user-correctable input problem, surfaced as a
// message rather than a failure of the map view.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ImportError wraps a GeoJSON parse failure. Callers keep the raw input
// so the user can correct it.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string { return fmt.Sprintf("invalid GeoJSON: %v", e.Err) }

func (e *ImportError) Unwrap() error { return e.Err }

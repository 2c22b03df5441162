package pipeline

import "fmt"

// FetchError reports that the source could not be read or returned a
// malformed or error payload.
type FetchError struct {
	Indicator string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch indicator %s: %v", e.Indicator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NormalizationError reports a record that could not be decoded or coerced.
type NormalizationError struct {
	Indicator string
	Err       error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize indicator %s: %v", e.Indicator, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write to the store.
type PersistenceError struct {
	Indicator string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist indicator %s: %v", e.Indicator, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PublishError reports that one or more sinks rejected the normalized table.
// The store already holds the new table when this is returned.
type PublishError struct {
	Indicator string
	Sinks     []string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish indicator %s to %v: %v", e.Indicator, e.Sinks, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

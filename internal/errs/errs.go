// Package errs defines the error kinds shared by the ingestion pipeline.
//
// Callers match on them with errors.As; every kind wraps its cause.
package errs

import "fmt"

// FetchError means a source could not be retrieved: network failure,
// non-success status or an unparseable payload.
type FetchError struct {
	Source string
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d", e.Source, e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means a single entry or document could not be interpreted.
type ParseError struct {
	Source string
	What   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("parse %s from %s: %v", e.What, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError wraps read/write failures of on-disk or database state.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigError reports an invalid configuration value or registry entry.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

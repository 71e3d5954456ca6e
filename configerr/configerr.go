// Package configerr holds the fatal configuration error shared by the
// packages that validate a simulation configuration.
//
// A ConfigurationError must be raised by every rank. All ranks load the same
// configuration, so the same check fails everywhere and no rank is left
// waiting in a collective.
package configerr

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound marks a target name that no source can resolve.
var ErrTargetNotFound = errors.New("target not found")

// ErrPartialOverride marks a weight=0 connection that was only partially
// overridden.
var ErrPartialOverride = errors.New("partial weight=0 override")

// ErrMalformedSpec marks a target spec with more than one colon.
var ErrMalformedSpec = errors.New("malformed target spec")

// A ConfigurationError reports invalid settings in the simulation
// configuration. It is never retried.
type ConfigurationError struct {
	// Subject names the offending entry, e.g. a connection or target name.
	Subject string
	Reason  string
	Err     error
}

// New creates a ConfigurationError about subject.
func New(subject string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Subject: subject,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// Wrap creates a ConfigurationError about subject caused by err.
func Wrap(subject string, err error, format string, args ...any) *ConfigurationError {
	e := New(subject, format, args...)
	e.Err = err

	return e
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return "configuration error: " + e.Reason
	}

	return fmt.Sprintf("configuration error: %s: %s", e.Reason, e.Subject)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is reports whether err is, or wraps, a ConfigurationError.
func Is(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

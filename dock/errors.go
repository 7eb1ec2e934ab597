package dock

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is wrapped by every ConfigurationError.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMismatchedLengths is returned when coordinate arrays differ in length.
	ErrMismatchedLengths = errors.New("mismatched coordinate array lengths")

	// ErrInvalidScan is returned for structurally malformed scans.
	ErrInvalidScan = errors.New("invalid scan")
)

// ConfigurationError reports an invalid template or estimator parameter.
// It is fatal: callers should fail before any scan is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

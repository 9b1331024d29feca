package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist and the
// operation cannot express absence as a nil result.
var ErrNotFound = errors.New("not found")

// CanonicalizationError reports key input that cannot be canonicalized. It is
// always a caller bug and is never retried.
type CanonicalizationError struct {
	Path   string
	Reason string
}

func (e *CanonicalizationError) Error() string {
	if e.Path == "" {
		return "canonicalization: " + e.Reason
	}
	return fmt.Sprintf("canonicalization at %s: %s", e.Path, e.Reason)
}

// ConfigurationError reports invalid engine or worker wiring. Fatal at
// startup, or immediate for a single bad request.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Reason }

// EngineNotFoundError reports a request for an engine name that was never
// registered.
type EngineNotFoundError struct {
	Name string
}

func (e *EngineNotFoundError) Error() string { return "engine not registered: " + e.Name }

// DatabaseError wraps an underlying storage failure. The store layer surfaces
// these to the caller without retrying.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string { return fmt.Sprintf("database %s: %v", e.Op, e.Err) }
func (e *DatabaseError) Unwrap() error { return e.Err }

// LockAcquisitionError reports a failed draft-claim or lock timeout. The
// caller may retry the whole operation.
type LockAcquisitionError struct {
	Resource string
}

func (e *LockAcquisitionError) Error() string { return "lock acquisition failed: " + e.Resource }

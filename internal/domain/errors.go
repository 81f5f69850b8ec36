package domain

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch means the model's JSON did not narrow into one of the
// three decision variants. Callers degrade to an apology chat reply.
var ErrSchemaMismatch = errors.New("decision schema mismatch")

// ErrUnauthorized means the task endpoint was called without the shared
// secret. Silent to the end user.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError reports a malformed or missing request field. Rejected at
// the boundary with no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError wraps a failure from an external collaborator (model, social
// API, pinning service, wallet engine).
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

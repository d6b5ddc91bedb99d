package domain

import (
	"errors"
	"fmt"
)

// The pipeline error taxonomy. Each type maps to one recovery strategy:
//
//   - TransientError: store or source unreachable. Aborts the current batch
//     with no document-level state change; the run is retried on the next
//     schedule.
//   - IntegrityError: malformed or empty required data. The document is
//     skipped and counted, the batch continues.
//   - ContradictionError: the publicity predicates disagree with the manual
//     flag. Callers apply the conservative default (send to review) and log.
//   - ServiceError: a synchronous collaborator (zoning, review queue)
//     failed. The document is persisted without the annotation and swept
//     later.

// TransientError wraps connectivity failures against the stores or the
// upstream sources.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError, or returns nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IntegrityError marks a single document as unusable.
type IntegrityError struct {
	Source Source
	ID     int64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s: %s", Key(e.Source, e.ID), e.Reason)
}

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var i *IntegrityError
	return errors.As(err, &i)
}

// ContradictionError reports that the publicity rule tables and the manual
// flag cannot both be honored.
type ContradictionError struct {
	NACCode string
	Reason  string
}

func (e *ContradictionError) Error() string {
	return fmt.Sprintf("publicity contradiction on code %q: %s", e.NACCode, e.Reason)
}

// IsContradiction reports whether err is (or wraps) a ContradictionError.
func IsContradiction(err error) bool {
	var c *ContradictionError
	return errors.As(err, &c)
}

// ServiceError wraps a failure of an external synchronous collaborator.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsService reports whether err is (or wraps) a ServiceError.
func IsService(err error) bool {
	var s *ServiceError
	return errors.As(err, &s)
}

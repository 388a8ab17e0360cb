package pipeline

import (
	"errors"
	"fmt"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Permanent() bool { return true }

// Permanent marks err as one that no redelivery can fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Outcome is how one delivery ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota + 1
	// OutcomeRejected: permanent failure, ERROR emitted, no retry.
	OutcomeRejected
	// OutcomeReported: failure on the last attempt, ERROR emitted.
	OutcomeReported
	// OutcomeSuppressed: failure before the last attempt, nothing emitted.
	OutcomeSuppressed
	// OutcomePublishFailed: the terminal event could not be published.
	OutcomePublishFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeReported:
		return "reported"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomePublishFailed:
		return "publish_failed"
	}
	return "unknown"
}

// Failure is returned by Handle for every failed delivery.
type Failure struct {
	Outcome Outcome
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Outcome, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// TerminalEventEmitted reports whether an ERROR event went out before the
// failure was returned.
func (f *Failure) TerminalEventEmitted() bool {
	return f.Outcome == OutcomeReported
}

package associate

import (
	"errors"
	"fmt"
	"time"

	"associateflow/stage"
)

// Reason classifies a rejected transition.
type Reason string

const (
	ReasonInvalidStage       Reason = "INVALID_STAGE"
	ReasonIllegalSkip        Reason = "ILLEGAL_SKIP"
	ReasonPreconditionFailed Reason = "PRECONDITION_FAILED"
)

var (
	ErrInvalidStage       = errors.New("associate: invalid stage")
	ErrIllegalSkip        = errors.New("associate: illegal stage skip")
	ErrPreconditionFailed = errors.New("associate: precondition failed")
)

const (
	// MessageAccepted is returned with every accepted transition.
	MessageAccepted = "Stage updated successfully."
	// MessageContributionUnpaid explains the legal-review gate.
	MessageContributionUnpaid = "Business rule: cannot move to 'Pendiente Jurídico' because the 49900 contribution has not been paid."
)

// Result is the outcome of a transition attempt. When Accepted is true, Record
// holds the updated associate; otherwise Reason says why it was rejected.
type Result struct {
	Accepted bool
	Record   Record
	Reason   Reason
	Message  string
}

// Err returns nil for accepted results and a *RejectionError otherwise.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return &RejectionError{Reason: r.Reason, Message: r.Message}
}

// RejectionError wraps a rejected Result so it can travel as an error.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("associate: transition rejected (%s): %s", e.Reason, e.Message)
}

// Is matches the sentinel error for the rejection reason.
func (e *RejectionError) Is(target error) bool {
	switch e.Reason {
	case ReasonInvalidStage:
		return target == ErrInvalidStage
	case ReasonIllegalSkip:
		return target == ErrIllegalSkip
	case ReasonPreconditionFailed:
		return target == ErrPreconditionFailed
	}
	return false
}

// precondition is a business gate on entering a specific stage. It returns a
// non-empty message when the record may not enter.
type precondition func(rec Record) string

var preconditions = map[stage.Stage]precondition{
	stage.PendingLegal: func(rec Record) string {
		if !rec.ContributionPaid {
			return MessageContributionUnpaid
		}
		return ""
	},
}

// Validator decides whether a record may move to a requested stage. It holds
// no mutable state and is safe for concurrent use.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a Validator stamping accepted records with the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// WithClock overrides the clock used for LastUpdated. A nil clock keeps the
// wall clock.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

var defaultValidator = NewValidator()

// AttemptTransition validates rec against requested using the wall clock.
func AttemptTransition(rec Record, requested string) Result {
	return defaultValidator.Attempt(rec, requested)
}

// Attempt applies, in order, the validity check, the no-skip rule and the
// target stage preconditions. The first failure wins. The input record is
// never modified.
func (v *Validator) Attempt(rec Record, requested string) Result {
	newIdx, ok := stage.IndexOf(requested)
	if !ok {
		return reject(ReasonInvalidStage, fmt.Sprintf("Stage '%s' is not valid.", requested))
	}

	// An unknown current stage does not block forward progress.
	if curIdx, known := stage.IndexOf(rec.Stage); known && newIdx > curIdx+1 {
		return reject(ReasonIllegalSkip, fmt.Sprintf("Cannot skip stages from %s to %s.", rec.Stage, requested))
	}

	if check, ok := preconditions[stage.Stage(requested)]; ok {
		if msg := check(rec); msg != "" {
			return reject(ReasonPreconditionFailed, msg)
		}
	}

	now := v.now().UTC()
	updated := rec
	updated.Stage = requested
	updated.LastUpdated = &now

	return Result{
		Accepted: true,
		Record:   updated,
		Message:  MessageAccepted,
	}
}

func reject(reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg}
}

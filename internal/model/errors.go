package model

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed or out-of-range reading before any
// state change.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ScoringError signals that a feature window holds too little data to
// score. Callers skip the cycle for that station; they never alert on
// empty data.
type ScoringError struct {
	StationID string
	Reason    string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("cannot score station %s: %s", e.StationID, e.Reason)
}

// NotFoundError reports an unknown alert id on a transition request.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError rejects an illegal lifecycle transition and leaves the
// alert unchanged.
type ConflictError struct {
	AlertID string
	From    AlertStatus
	To      AlertStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("alert %s: illegal transition %s -> %s", e.AlertID, e.From, e.To)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsScoring(err error) bool {
	var se *ScoringError
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

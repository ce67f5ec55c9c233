package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Enrollment failures are expected per-request outcomes. Handlers map them
// to HTTP statuses and return the message verbatim in the response envelope.
var (
	ErrUnitNotFound    = errors.New("unit not found")
	ErrAlreadyEnrolled = errors.New("you're already enrolled in this unit")
	ErrAlreadyAssigned = errors.New("you're already the lecturer for this unit")
	ErrSlotOccupied    = errors.New("this unit already has a lecturer")
	ErrNotEnrolled     = errors.New("you're not enrolled in this unit")
	ErrInvalidRole     = errors.New("invalid user role")
)

// ValidationError reports a required creation field that was empty after
// trimming.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// AccessRestrictedError carries the restriction list and the admission
// number that failed it, so callers can display both.
type AccessRestrictedError struct {
	RequiredPrefixes []string
	AdmissionNumber  string
}

func (e *AccessRestrictedError) Error() string {
	return fmt.Sprintf(
		"your admission number (%s) doesn't have access to this unit. Required prefixes: %s",
		e.AdmissionNumber, strings.Join(e.RequiredPrefixes, ", "),
	)
}

package shared

import (
	"errors"
	"fmt"
)

// Code classifies engine failures for callers that render them.
type Code string

const (
	CodeUnbalancedEntry      Code = "UNBALANCED_ENTRY"
	CodeRateNotFound         Code = "RATE_NOT_FOUND"
	CodeOverpayment          Code = "OVERPAYMENT"
	CodeConfigurationMissing Code = "CONFIGURATION_MISSING"
	CodeReferenceNotFound    Code = "REFERENCE_NOT_FOUND"
	CodeDuplicateInstrument  Code = "DUPLICATE_INSTRUMENT"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeValidation           Code = "VALIDATION_FAILED"
	CodeConflict             Code = "CONFLICT"
	CodeInternal             Code = "INTERNAL"
)

var (
	// ErrUnbalancedEntry indicates debits and credits of a journal entry differ.
	ErrUnbalancedEntry = errors.New("ledger: unbalanced entry")
	// ErrRateNotFound indicates no exchange rate exists on or before the requested day.
	ErrRateNotFound = errors.New("fx: rate not found")
	// ErrOverpayment indicates a payment larger than the outstanding balance.
	ErrOverpayment = errors.New("payments: overpayment")
	// ErrConfigurationMissing indicates a required system account is not set up for the tenant.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrReferenceNotFound indicates a referenced document or method does not exist.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrDuplicateInstrument indicates one payment method used twice in a split payment.
	ErrDuplicateInstrument = errors.New("payments: duplicate instrument")
	// ErrInvalidState occurs when an action violates a document workflow.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("invalid input")
	// ErrIdempotencyConflict indicates the request key was already processed.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)

var taxonomy = []struct {
	err  error
	code Code
}{
	{ErrUnbalancedEntry, CodeUnbalancedEntry},
	{ErrRateNotFound, CodeRateNotFound},
	{ErrOverpayment, CodeOverpayment},
	{ErrConfigurationMissing, CodeConfigurationMissing},
	{ErrReferenceNotFound, CodeReferenceNotFound},
	{ErrDuplicateInstrument, CodeDuplicateInstrument},
	{ErrInvalidState, CodeInvalidState},
	{ErrValidation, CodeValidation},
	{ErrIdempotencyConflict, CodeConflict},
}

// CodeOf maps err onto the error taxonomy. Unknown errors are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, entry := range taxonomy {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// IsBusiness reports whether err is a permanent business-rule failure.
func IsBusiness(err error) bool {
	code := CodeOf(err)
	return code != "" && code != CodeInternal
}

// NotFoundError names the missing reference.
type NotFoundError struct {
	Kind string
	ID   any
}

// NotFound builds a NotFoundError for the given kind and id.
func NotFound(kind string, id any) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrReferenceNotFound
}

// ConfigurationError names the system account or setting that is absent.
type ConfigurationError struct {
	TenantID int64
	Setting  string
}

// MissingConfiguration builds a ConfigurationError.
func MissingConfiguration(tenantID int64, setting string) *ConfigurationError {
	return &ConfigurationError{TenantID: tenantID, Setting: setting}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration missing: %s not configured for tenant %d", e.Setting, e.TenantID)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfigurationMissing
}

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StateError describes a rejected workflow transition.
type StateError struct {
	Document string
	ID       any
	Status   string
	Action   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %v: cannot %s while %s", e.Document, e.ID, e.Action, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationTimeRange     ErrorCode = "validation_invalid_time_range"
	ErrCodeValidationDuration      ErrorCode = "validation_duration_out_of_range"
	ErrCodeValidationCapacity      ErrorCode = "validation_invalid_capacity"
	ErrCodeValidationDateInPast    ErrorCode = "validation_date_in_past"
	ErrCodeValidationAllowance     ErrorCode = "validation_invalid_allowance"

	// Not Found (404)
	ErrCodeNotFoundZone         ErrorCode = "not_found_zone"
	ErrCodeNotFoundInstructor   ErrorCode = "not_found_instructor"
	ErrCodeNotFoundPlan         ErrorCode = "not_found_plan"
	ErrCodeNotFoundStudent      ErrorCode = "not_found_student"
	ErrCodeNotFoundClass        ErrorCode = "not_found_class"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundReservation  ErrorCode = "not_found_reservation"

	// Conflict (409)
	ErrCodeConflictScheduleOverlap      ErrorCode = "conflict_instructor_schedule_overlap"
	ErrCodeConflictZoneOverlap          ErrorCode = "conflict_zone_schedule_overlap"
	ErrCodeConflictCapacityExceeded     ErrorCode = "conflict_capacity_exceeded"
	ErrCodeConflictCapacityBelowBooked  ErrorCode = "conflict_capacity_below_booked"
	ErrCodeConflictZoneCapacity         ErrorCode = "conflict_zone_capacity_exceeded"
	ErrCodeConflictAllowanceExhausted   ErrorCode = "conflict_allowance_exhausted"
	ErrCodeConflictNoActiveSubscription ErrorCode = "conflict_no_active_subscription"
	ErrCodeConflictDuplicateReservation ErrorCode = "conflict_duplicate_reservation"
	ErrCodeConflictDuplicateEmail       ErrorCode = "conflict_duplicate_email"
	ErrCodeConflictDeadlinePassed       ErrorCode = "conflict_cancellation_deadline_passed"
	ErrCodeConflictClassNotOpen         ErrorCode = "conflict_class_not_open"
	ErrCodeConflictPlanInactive         ErrorCode = "conflict_plan_inactive"
	ErrCodeConflictInvalidTransition    ErrorCode = "conflict_invalid_status_transition"
	ErrCodeConflictConcurrent           ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamPayment     ErrorCode = "upstream_payment_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Webhook authentication
	ErrCodeWebhookSignatureMissing ErrorCode = "webhook_signature_missing"
	ErrCodeWebhookSignatureInvalid ErrorCode = "webhook_signature_invalid"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "webhook_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the platform.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// Useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

package dto

import "net/http"

// Wire error codes, ERR_<CATEGORY>_<DESCRIPTION>. Clients branch on
// these; the mapping tables below decide the HTTP status for each.

// General failures.
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Request validation failures.
const (
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired flags a missing required field.
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
	ErrCodeValidationRange    = "ERR_VALIDATION_RANGE"
	ErrCodeValidationLength   = "ERR_VALIDATION_LENGTH"
)

// Authentication and authorization failures.
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource lookup and conflict failures.
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict signals an optimistic lock loss; the
	// client should re-read and retry.
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Domain rule violations.
const (
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeInsufficientBalance means a credit lacks unapplied funds
	// to cover the requested allocation.
	ErrCodeInsufficientBalance = "ERR_INSUFFICIENT_BALANCE"
)

// Malformed input.
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Throttling.
const (
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
)

// ErrorCodeHTTPStatus maps each wire error code to its HTTP status.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Domain rule violations surface as 422: the request was well
	// formed but the ledger refused it.
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance: http.StatusUnprocessableEntity,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
}

// GetHTTPStatus resolves the HTTP status for a wire error code,
// defaulting to 500 for codes outside the table.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to the standardized
// ERR_* codes used on the wire. Domain packages raise their own stable
// reason codes; this table decides the HTTP category for each.
var LegacyErrorCodeMapping = map[string]string{
	// Generic
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"FORBIDDEN":            ErrCodeForbidden,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,

	// Lookups
	"ENTRY_NOT_FOUND":   ErrCodeNotFound,
	"DUE_NOT_FOUND":     ErrCodeNotFound,
	"PAYMENT_NOT_FOUND": ErrCodeNotFound,
	"UNIT_NOT_FOUND":    ErrCodeNotFound,
	"INVITE_NOT_FOUND":  ErrCodeNotFound,

	// Concurrency and idempotency
	"CONCURRENT_LEDGER_ACTIVITY": ErrCodeConcurrencyConflict,
	"OPTIMISTIC_LOCK_ERROR":      ErrCodeConcurrencyConflict,
	"IDEMPOTENCY_KEY_CONFLICT":   ErrCodeConflict,
	"INVITE_RESERVED":            ErrCodeConflict,

	// Input validation raised by domain constructors
	"INVALID_AMOUNT":          ErrCodeInvalidInput,
	"INVALID_ENTRY_NUMBER":    ErrCodeInvalidInput,
	"INVALID_ENTRY_TYPE":      ErrCodeInvalidInput,
	"INVALID_EXPIRY":          ErrCodeInvalidInput,
	"INVALID_IDEMPOTENCY_KEY": ErrCodeInvalidInput,
	"INVALID_METHOD":          ErrCodeInvalidInput,
	"INVALID_NAME":            ErrCodeInvalidInput,
	"INVALID_OWNER":           ErrCodeInvalidInput,
	"INVALID_REASON":          ErrCodeInvalidInput,
	"INVALID_RESERVATION_KEY": ErrCodeInvalidInput,
	"INVALID_RESIDENT":        ErrCodeInvalidInput,
	"INVALID_ROLE":            ErrCodeInvalidInput,
	"INVALID_SOURCE":          ErrCodeInvalidInput,
	"INVALID_STATUS":          ErrCodeInvalidInput,
	"INVALID_UNIT":            ErrCodeInvalidInput,
	"INVALID_UNIT_CODE":       ErrCodeInvalidInput,
	"INVALID_USER":            ErrCodeInvalidInput,
	"INVALID_YEAR_MONTH":      ErrCodeInvalidInput,
	"INVALID_ALLOCATION":      ErrCodeInvalidInput,

	// Lifecycle state
	"ENTRY_NOT_POSTED": ErrCodeInvalidState,
	"ENTRY_VOIDED":     ErrCodeInvalidState,
	"ENTRY_REVERSED":   ErrCodeInvalidState,
	"DUE_ALREADY_PAID": ErrCodeInvalidState,
	"ALERT_RESOLVED":   ErrCodeInvalidState,
	"INVITE_USED":      ErrCodeInvalidState,
	"INVITE_REVOKED":   ErrCodeInvalidState,
	"INVITE_EXPIRED":   ErrCodeInvalidState,
	"UNIT_OCCUPIED":    ErrCodeInvalidState,
	"ALREADY_OWNER":    ErrCodeInvalidState,

	// Ledger business rules
	"NOT_A_DUE":                    ErrCodeBusinessRule,
	"NOT_A_PAYMENT":                ErrCodeBusinessRule,
	"PAYMENT_NOT_ALLOCATABLE":      ErrCodeBusinessRule,
	"NO_ELIGIBLE_DUES":             ErrCodeBusinessRule,
	"USE_REVERSE_PAYMENT_CALLABLE": ErrCodeBusinessRule,
	"EXCEEDS_DUE":                  ErrCodeBusinessRule,
	"EXCEEDS_ALLOCATED":            ErrCodeBusinessRule,
	"EXCEEDS_UNAPPLIED":            ErrCodeInsufficientBalance,

	// Invite security
	"INVITE_BAD_NONCE": ErrCodeForbidden,

	// Throttling
	"REBUILD_THROTTLED": ErrCodeRateLimited,
}

// NormalizeErrorCode converts a legacy error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

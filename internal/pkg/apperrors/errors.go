package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason identifies which gate rejected a signing request. Reasons are
// propagated as tagged values end to end; HTTP status and user-facing
// classing are derived here, never by matching message text.
type Reason string

const (
	// Whitelist.
	ReasonForbiddenDestination Reason = "FORBIDDEN_DESTINATION"

	// Activity validation.
	ReasonActivityNotFound     Reason = "ACTIVITY_NOT_FOUND"
	ReasonParameterMismatch    Reason = "PARAMETER_MISMATCH"
	ReasonNoActiveRelationship Reason = "NO_ACTIVE_RELATIONSHIP"
	ReasonWalletMismatch       Reason = "WALLET_MISMATCH"
	ReasonAlreadySigned        Reason = "ALREADY_SIGNED"
	ReasonOrderNotYetSigned    Reason = "ORDER_NOT_YET_SIGNED"
	ReasonAmountUnavailable    Reason = "AMOUNT_UNAVAILABLE"
	ReasonCommissionMismatch   Reason = "COMMISSION_MISMATCH"

	// Guard.
	ReasonRateLimitExceeded   Reason = "RATE_LIMIT_EXCEEDED"
	ReasonVolumeLimitExceeded Reason = "VOLUME_LIMIT_EXCEEDED"
	ReasonUserBlocked         Reason = "USER_BLOCKED"

	// Infrastructure.
	ReasonSignerError      Reason = "SIGNER_ERROR"
	ReasonConcurrentReplay Reason = "CONCURRENT_REPLAY_DETECTED"
	ReasonInternal         Reason = "INTERNAL_ERROR"
	ReasonUnauthorized     Reason = "UNAUTHORIZED"
	ReasonInvalidRequest   Reason = "INVALID_REQUEST"
)

// AppError is the standard error value crossing service boundaries.
type AppError struct {
	Reason  Reason `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(reason Reason, msg string) *AppError {
	return &AppError{Reason: reason, Message: msg}
}

func Newf(reason Reason, format string, args ...any) *AppError {
	return &AppError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Wrap(reason Reason, msg string, cause error) *AppError {
	return &AppError{Reason: reason, Message: msg, Cause: cause}
}

// ReasonOf extracts the tagged reason from an error chain, defaulting to
// ReasonInternal for untagged errors.
func ReasonOf(err error) Reason {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ReasonInternal
}

// Is reports whether err carries the given reason.
func Is(err error, reason Reason) bool {
	return ReasonOf(err) == reason
}

// HTTPStatus maps a reason to the response status. Activity-validation
// reasons surface as a generic forbidden class, guard reasons as a
// throttling class.
func HTTPStatus(reason Reason) int {
	switch reason {
	case ReasonForbiddenDestination,
		ReasonActivityNotFound,
		ReasonParameterMismatch,
		ReasonNoActiveRelationship,
		ReasonWalletMismatch,
		ReasonAlreadySigned,
		ReasonOrderNotYetSigned,
		ReasonAmountUnavailable,
		ReasonCommissionMismatch:
		return http.StatusForbidden
	case ReasonRateLimitExceeded, ReasonVolumeLimitExceeded, ReasonUserBlocked:
		return http.StatusTooManyRequests
	case ReasonUnauthorized:
		return http.StatusUnauthorized
	case ReasonInvalidRequest:
		return http.StatusBadRequest
	case ReasonSignerError:
		return http.StatusBadGateway
	case ReasonConcurrentReplay:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

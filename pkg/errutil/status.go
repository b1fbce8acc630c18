package errutil

import "net/http"

// CoreStatus classifies a domain error independently of any transport.
type CoreStatus string

const (
	StatusBadRequest             CoreStatus = "bad_request"
	StatusValidationFailed       CoreStatus = "validation_failed"
	StatusInsufficientBalance    CoreStatus = "insufficient_balance"
	StatusInvalidRedemptionState CoreStatus = "invalid_redemption_state"
	StatusNotFound               CoreStatus = "not_found"
	StatusConflict               CoreStatus = "conflict"
	StatusAccountFailure         CoreStatus = "account_failure"
	StatusInternal               CoreStatus = "internal"
	StatusUnknown                CoreStatus = "unknown"
)

func (s CoreStatus) String() string {
	return string(s)
}

// HTTPStatus maps a status onto the response code the ops surface uses.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusInsufficientBalance, StatusInvalidRedemptionState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Recoverable reports whether a caller can surface the error to an end user
// and continue. Everything except internal failures is recoverable.
func (s CoreStatus) Recoverable() bool {
	switch s {
	case StatusInternal, StatusAccountFailure, StatusUnknown:
		return false
	default:
		return true
	}
}

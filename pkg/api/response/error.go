package response

import (
	"errors"
	"net/http"

	"github.com/gateline/gateline/pkg/order"
	"github.com/gateline/gateline/pkg/saga"
	"github.com/gateline/gateline/pkg/storage"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeSoldOut            = "SOLD_OUT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrConflict           = errors.New("resource conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("request timeout")
	ErrInternalServer     = errors.New("internal server error")
)

// HTTPStatusFromError maps transport and domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var notFound *storage.NotFoundError
	var duplicate *storage.DuplicateKeyError
	var unavailable *storage.StorageUnavailableError

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, order.ErrEventNotFound),
		errors.Is(err, saga.ErrExecutionNotFound),
		errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInsufficientInventory):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, order.ErrInvalidInput),
		errors.Is(err, order.ErrUnknownTicketType):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.Is(err, ErrServiceUnavailable), errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// ErrorCodeFromError picks the response code for a mapped error. Sold-out
// failures carry their own code so clients can distinguish them from other
// conflicts.
func ErrorCodeFromError(err error) string {
	if errors.Is(err, order.ErrInsufficientInventory) {
		return ErrCodeSoldOut
	}
	return ErrorCodeFromStatus(HTTPStatusFromError(err))
}

// HandleError is a convenience function to handle errors and write appropriate responses.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	code := ErrorCodeFromError(err)
	Error(w, status, code, err.Error(), requestID)
}

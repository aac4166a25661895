package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	PaymentID string            `json:"payment_id,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var declined *paymentdomain.DeclinedError
	if errors.As(err, &declined) {
		payload := errorPayload{
			Type:    "payment_declined",
			Message: declined.Reason,
		}
		if declined.PaymentID != 0 {
			payload.PaymentID = declined.PaymentID.String()
		}
		return http.StatusPaymentRequired, payload
	}

	switch {
	case errors.Is(err, paymentdomain.ErrInvalidState):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_state",
			Message: "payment cannot be refunded in its current state",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrPaymentInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "payment_in_progress",
			Message: "a payment for this order is already being processed",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many payment requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || paymentdomain.IsValidation(err)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, paymentdomain.ErrNotFound)
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, paymentdomain.ErrInvalidOrderID):
		return paymentdomain.ErrInvalidOrderID.Error()
	case errors.Is(err, paymentdomain.ErrInvalidAmount):
		return paymentdomain.ErrInvalidAmount.Error()
	case errors.Is(err, paymentdomain.ErrInvalidCurrency):
		return paymentdomain.ErrInvalidCurrency.Error()
	case errors.Is(err, paymentdomain.ErrInvalidPaymentMethod):
		return paymentdomain.ErrInvalidPaymentMethod.Error()
	case errors.Is(err, paymentdomain.ErrInvalidID):
		return paymentdomain.ErrInvalidID.Error()
	case errors.Is(err, paymentdomain.ErrInvalidReason):
		return paymentdomain.ErrInvalidReason.Error()
	case errors.Is(err, paymentdomain.ErrInvalidRefundAmount):
		return paymentdomain.ErrInvalidRefundAmount.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_amount", "invalid_refund_amount":
		return "amount must be positive with at most two decimal places"
	default:
		return "invalid value"
	}
}

package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	decisiondomain "github.com/lendstack/underwriting/internal/decision/domain"
	overridedomain "github.com/lendstack/underwriting/internal/override/domain"
	ruledomain "github.com/lendstack/underwriting/internal/rule/domain"
	scoringdomain "github.com/lendstack/underwriting/internal/scoring/domain"
	"gorm.io/gorm"
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
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

	switch {
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, scoringdomain.ErrUnavailable),
		errors.Is(err, scoringdomain.ErrNotConfigured):
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

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, scoringdomain.ErrInvalidRequest):
		return true
	case isRuleValidationError(err),
		isDecisionValidationError(err),
		isOverrideValidationError(err):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ruledomain.ErrNotFound),
		errors.Is(err, decisiondomain.ErrNotFound),
		errors.Is(err, overridedomain.ErrNotFound),
		errors.Is(err, overridedomain.ErrNoDecision),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "stale_decision":
		return "original_decision"
	case "pending_exists":
		return "application_id"
	case "not_pending":
		return "status"
	case "self_review":
		return "reviewed_by"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "missing_") {
		return strings.TrimPrefix(code, "missing_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "stale_decision":
		return "current decision no longer matches the override claim"
	case "pending_exists":
		return "a pending override request already exists"
	case "not_pending":
		return "override request is not pending"
	case "self_review":
		return "requester cannot review their own request"
	default:
		return "invalid value"
	}
}

func isRuleValidationError(err error) bool {
	switch err {
	case ruledomain.ErrInvalidID,
		ruledomain.ErrInvalidName,
		ruledomain.ErrInvalidKind,
		ruledomain.ErrInvalidExpression,
		ruledomain.ErrInvalidContext,
		ruledomain.ErrMissingRuleScope:
		return true
	default:
		return false
	}
}

func isDecisionValidationError(err error) bool {
	return err == decisiondomain.ErrInvalidApplication
}

// Override precondition failures (stale claim, duplicate pending request,
// non-pending target, self-review) are bad requests: the caller asserted
// something about current state that does not hold.
func isOverrideValidationError(err error) bool {
	switch err {
	case overridedomain.ErrInvalidID,
		overridedomain.ErrInvalidApplication,
		overridedomain.ErrInvalidDecision,
		overridedomain.ErrInvalidJustification,
		overridedomain.ErrInvalidRemarks,
		overridedomain.ErrInvalidActor,
		overridedomain.ErrStaleDecision,
		overridedomain.ErrPendingExists,
		overridedomain.ErrNotPending,
		overridedomain.ErrSelfReview:
		return true
	default:
		return false
	}
}

package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-verification/internal/core/apperror"
)

// ErrorBody is the client-facing rendering of an *apperror.Error.
type ErrorBody struct {
	Code       apperror.Code     `json:"code"`
	Message    string            `json:"message"`
	Category   apperror.Category `json:"category"`
	Severity   apperror.Severity `json:"severity"`
	Suggestion string            `json:"suggestion,omitempty"`
	Retryable  bool              `json:"retryable"`
	StatusCode int               `json:"statusCode"`
	Field      string            `json:"field,omitempty"`
	Details    map[string]any    `json:"details,omitempty"`
	TraceID    string            `json:"traceId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// NewErrorResponse classifies err and renders it with the request trace id.
func NewErrorResponse(c *gin.Context, err error) (int, ErrorResponse) {
	appErr := apperror.Classify(err)
	status := appErr.HTTPStatus()

	return status, ErrorResponse{
		Success: false,
		Error: ErrorBody{
			Code:       appErr.Code,
			Message:    appErr.Message,
			Category:   appErr.Category(),
			Severity:   appErr.Severity(),
			Suggestion: appErr.Suggestion(),
			Retryable:  appErr.Retryable(),
			StatusCode: status,
			Field:      appErr.Field,
			Details:    appErr.Details,
			TraceID:    GetTraceID(c),
			Timestamp:  appErr.Timestamp,
		},
	}
}

// AbortWithError writes err as the error envelope, sets Retry-After for
// throttled or locked requests and aborts the chain.
func AbortWithError(c *gin.Context, err error) {
	status, body := NewErrorResponse(c, err)

	if seconds, ok := retryAfter(body.Error); ok {
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func retryAfter(body ErrorBody) (int64, bool) {
	switch body.Code {
	case apperror.CodeAccountLocked:
		if seconds, ok := body.Details["retryAfterSeconds"].(int64); ok {
			return seconds, true
		}
	case apperror.CodeRateLimited:
		if reset, ok := body.Details["resetTime"].(time.Time); ok {
			seconds := int64(math.Ceil(time.Until(reset).Seconds()))
			return max(seconds, 0), true
		}
	}
	return 0, false
}

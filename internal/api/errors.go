package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Category      string `json:"category,omitempty"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlationId"`
}

// NewErrorResponse builds an ErrorResponse with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
		if c := errors.CategoryOf(err); c != errors.CategoryGeneric {
			resp.Category = string(c)
		}
	}
	return resp
}

// handleError logs err and writes the error response.
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Info("API error", fields...)
	}
	return c.JSON(code, resp)
}

// httpStatusFor maps an error category to a response code.
func httpStatusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryConnection, errors.CategoryInProgress:
		return http.StatusConflict
	case errors.CategoryInsufficientAudio:
		return http.StatusUnprocessableEntity
	case errors.CategoryUnsupportedFormat:
		return http.StatusNotImplemented
	case errors.CategoryIdentificationService:
		return http.StatusBadGateway
	case errors.CategoryValidation:
		return http.StatusForbidden
	case errors.CategoryCancellation:
		return http.StatusServiceUnavailable
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

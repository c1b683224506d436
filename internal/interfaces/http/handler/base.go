package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelhub/backend/internal/domain/binding"
	"github.com/channelhub/backend/internal/domain/channel"
	"github.com/channelhub/backend/internal/domain/job"
	"github.com/channelhub/backend/internal/domain/order"
	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, code, message string) {
	h.Error(c, http.StatusUnauthorized, code, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// UnprocessableEntity sends a 422 unprocessable entity response
func (h *BaseHandler) UnprocessableEntity(c *gin.Context, code, message string) {
	h.Error(c, http.StatusUnprocessableEntity, code, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// domainErrorCode maps a domain sentinel to an API error code, or "".
func domainErrorCode(err error) string {
	switch {
	case errors.Is(err, channel.ErrAccountNotFound),
		errors.Is(err, channel.ErrShopNotFound),
		errors.Is(err, binding.ErrBindingNotFound),
		errors.Is(err, job.ErrJobNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return dto.ErrCodeNotFound

	case errors.Is(err, channel.ErrShopDuplicate),
		errors.Is(err, binding.ErrBindingDuplicate):
		return dto.ErrCodeAlreadyExists

	case errors.Is(err, channel.ErrAccountMissingName),
		errors.Is(err, channel.ErrAccountInvalidChannel),
		errors.Is(err, channel.ErrAccountInvalidInterval),
		errors.Is(err, channel.ErrAccountInvalidBatch),
		errors.Is(err, channel.ErrShopMissingExternalID),
		errors.Is(err, binding.ErrBindingMissingSKU),
		errors.Is(err, binding.ErrBindingMissingShop),
		errors.Is(err, binding.ErrRuleInvalidScope),
		errors.Is(err, job.ErrUnknownType):
		return dto.ErrCodeInvalidInput

	case errors.Is(err, channel.ErrAuthNotApplicable):
		return dto.ErrCodeAuthNotApplicable
	case errors.Is(err, channel.ErrAuthRevoked):
		return dto.ErrCodeAuthRevoked
	case errors.Is(err, channel.ErrAuthNotConfigured):
		return dto.ErrCodeNotConnected
	case errors.Is(err, job.ErrInvalidTransition):
		return dto.ErrCodeInvalidState
	}
	return ""
}

// HandleDomainError converts domain errors to HTTP responses
func (h *BaseHandler) HandleDomainError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	if code := domainErrorCode(err); code != "" {
		h.ErrorWithCode(c, code, err.Error())
		return
	}
	h.InternalError(c, "An unexpected error occurred")
}

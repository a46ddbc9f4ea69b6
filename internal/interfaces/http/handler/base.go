package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/platform"
	"github.com/storelink/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

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

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

// HandleError maps application errors onto HTTP status codes.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, statusForCode(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}

	if platformErr, ok := platform.AsError(err); ok {
		h.Error(c, statusForPlatform(platformErr), "PLATFORM_"+strings.ToUpper(string(platformErr.Kind)), platformErr.Message)
		return
	}

	h.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
}

func statusForCode(code string) int {
	switch code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "UNAUTHENTICATED", "TOKEN_REJECTED", "SIGNATURE_INVALID", "IDENTITY_MISMATCH",
		"INVALID_CREDENTIALS", "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN", "NOT_INSTALLED", "SHOP_CLAIMED":
		return http.StatusForbidden
	case "ALREADY_EXISTS", "EMAIL_TAKEN", "CONCURRENCY_CONFLICT":
		return http.StatusConflict
	case "SUBSCRIPTION_REQUIRED", "SUBSCRIPTION_UNINSTALLED":
		return http.StatusPaymentRequired
	case "INVALID_STATE":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// statusForPlatform maps upstream platform failures. The caller's request
// did not fail validation; the upstream did, so these surface as gateway
// errors except for rate limiting, which propagates as 429.
func statusForPlatform(err *platform.Error) int {
	if err.Kind == platform.KindRateLimited {
		return http.StatusTooManyRequests
	}
	return http.StatusBadGateway
}

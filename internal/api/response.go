// Package api exposes alert search, data views, explorer sessions and their
// filter groups over HTTP.
package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"alertscope/internal/alertsapi"
	"alertscope/internal/alertsquery"
	"alertscope/internal/dataview"
	"alertscope/internal/domain"
	"alertscope/internal/explorer"
	"alertscope/internal/filtergroup"
	"alertscope/internal/kql"
)

// APIResponse is the standard response envelope for all API responses.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError represents an error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes for consistent API responses.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnavailable      = "BACKEND_UNAVAILABLE"
	ErrCodeTimeout          = "TIMEOUT"
)

// Success sends a successful JSON response with the given data.
func Success(c *fiber.Ctx, data any) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithStatus sends a successful JSON response with a custom status code.
func SuccessWithStatus(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// Created sends a 201 Created response with the given data.
func Created(c *fiber.Ctx, data any) error {
	return SuccessWithStatus(c, fiber.StatusCreated, data)
}

// Accepted sends a 202 Accepted response for async operations.
func Accepted(c *fiber.Ctx, data any) error {
	return SuccessWithStatus(c, fiber.StatusAccepted, data)
}

// NoContent sends a 204 No Content response.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Error sends an error JSON response with the given status code.
func Error(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, ErrCodeBadRequest, message)
}

// ValidationError sends a 400 Bad Request error for validation failures.
func ValidationError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, ErrCodeValidationFailed, message)
}

// NotFound sends a 404 Not Found error response.
func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict sends a 409 Conflict error response.
func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, ErrCodeConflict, message)
}

// InternalError sends a 500 Internal Server Error response.
func InternalError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, ErrCodeInternalError, message)
}

// FromError sends the error response matching a domain error.
func FromError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, explorer.ErrSessionNotFound),
		errors.Is(err, filtergroup.ErrControlNotFound),
		errors.Is(err, dataview.ErrDataViewNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, filtergroup.ErrDuplicateControl),
		errors.Is(err, filtergroup.ErrNotInEditMode),
		errors.Is(err, filtergroup.ErrControlLimitReached),
		errors.Is(err, explorer.ErrSessionClosed),
		errors.Is(err, filtergroup.ErrControllerStopped):
		return Conflict(c, err.Error())
	case errors.Is(err, domain.ErrInvalidFeatureID),
		errors.Is(err, domain.ErrNegativePageIndex),
		errors.Is(err, domain.ErrNegativePageSize),
		errors.Is(err, domain.ErrResultWindow),
		errors.Is(err, domain.ErrInvalidSortOrder),
		errors.Is(err, domain.ErrInvalidAlertStatus),
		errors.Is(err, filtergroup.ErrInvalidControl),
		errors.Is(err, kql.ErrSyntax),
		errors.Is(err, alertsquery.ErrNoFeatureIDs):
		return ValidationError(c, err.Error())
	case errors.Is(err, alertsapi.ErrBackendUnavailable):
		return Error(c, fiber.StatusBadGateway, ErrCodeUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return Error(c, fiber.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	default:
		return InternalError(c, err.Error())
	}
}

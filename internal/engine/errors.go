package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"lowcode-backend/internal/logging"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(model, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", model, id),
	}
}

func UnknownModelError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_MODEL",
		Status:  404,
		Message: fmt.Sprintf("Unknown model: %s", name),
	}
}

// ModelNotFoundError reports a model whose definition file is missing.
func ModelNotFoundError() *AppError {
	return NewAppError("MODEL_NOT_FOUND", 404, "Model not found")
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UnauthorizedError(msg string) *AppError {
	return NewAppError("UNAUTHENTICATED", 401, msg)
}

func ForbiddenError(msg string) *AppError {
	return NewAppError("FORBIDDEN", 403, msg)
}

func NotOwnerError() *AppError {
	return NewAppError("NOT_OWNER", 403, "Not owner")
}

func ConflictError(msg string) *AppError {
	return NewAppError("CONFLICT", 409, msg)
}

func InvalidPayloadError(msg string) *AppError {
	return NewAppError("INVALID_PAYLOAD", 400, msg)
}

// ErrorHandler renders every error returned from a handler as an
// ErrorResponse. Anything that is not an *AppError is logged and hidden
// behind a generic message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: &AppError{Code: statusCode(fiberErr.Code), Message: fiberErr.Message},
		})
	}

	logging.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}

func statusCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusUnprocessableEntity:
		return "INVALID_PAYLOAD"
	default:
		return "BAD_REQUEST"
	}
}

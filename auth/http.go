package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Respond writes a success envelope.
func Respond(ctx router.Context, status int, message string, data any) error {
	return ctx.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondFiber writes a success envelope on a raw fiber context.
func RespondFiber(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// StatusFor maps a categorized error to an HTTP status. An explicit code wins
// over the category.
func StatusFor(err *goerrors.Error) int {
	if err == nil {
		return fiber.StatusInternalServerError
	}
	if err.Code >= fiber.StatusBadRequest {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// NewErrorHandler is the single place errors become envelopes. Internal
// details are only exposed in development.
func NewErrorHandler(logger Logger, development bool) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger()
	}

	return func(c *fiber.Ctx, err error) error {
		resp := Response{Success: false}
		status := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		if richErr, ok := RichError(err); ok {
			status = StatusFor(richErr)
			resp.Message = richErr.Message
			resp.Errors = FieldsOf(err)
		} else if errors.As(err, &fiberErr) {
			status = fiberErr.Code
			resp.Message = fiberErr.Message
			if status == fiber.StatusNotFound {
				resp.Message = ErrRouteNotFound.Message + ": " + c.OriginalURL()
			}
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Method(), c.OriginalURL(), err)
			resp.Message = "internal server error"
			resp.Errors = nil
			if development {
				resp.Error = err.Error()
			}
		}

		return c.Status(status).JSON(resp)
	}
}

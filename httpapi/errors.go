package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	goerrors "github.com/goliatone/go-errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorHandler writes err as JSON. Rich errors keep their own status code;
// anything else is a 500 and its message is not exposed.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)
	return c.Status(status).JSON(ErrorResponse{Error: body})
}

func errorResponse(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		return fiber.StatusUnauthorized, ErrorBody{Code: accounts.TextCodeInvalidCredentials, Message: err.Error()}
	case errors.Is(err, jwtware.ErrForbidden):
		return fiber.StatusForbidden, ErrorBody{Code: "FORBIDDEN", Message: err.Error()}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, ErrorBody{Message: fe.Message}
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return fiber.StatusInternalServerError, ErrorBody{Message: "internal error"}
	}

	status := rich.Code
	if status < 400 || status > 599 {
		switch rich.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			status = fiber.StatusBadRequest
		case goerrors.CategoryAuth:
			status = fiber.StatusUnauthorized
		case goerrors.CategoryAuthz:
			status = fiber.StatusForbidden
		case goerrors.CategoryNotFound:
			status = fiber.StatusNotFound
		case goerrors.CategoryConflict:
			status = fiber.StatusConflict
		case goerrors.CategoryRateLimit:
			status = fiber.StatusTooManyRequests
		default:
			status = fiber.StatusInternalServerError
		}
	}
	body := ErrorBody{Code: rich.TextCode, Message: rich.Message}
	if status >= fiber.StatusInternalServerError {
		body.Message = "internal error"
	} else if len(rich.Metadata) > 0 {
		body.Metadata = rich.Metadata
	}
	return status, body
}

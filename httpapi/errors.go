package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, contractx.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, contractx.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, contractx.ErrInvalidState), errors.Is(err, contractx.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, contractx.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, contractx.ErrRetriesExhausted), errors.Is(err, contractx.ErrModelInvoke):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler writes every error as JSON. Server side failures get a fixed
// message; the cause is only logged.
func errorHandler(c *fiber.Ctx, err error) error {
	status := statusFor(err)

	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.Ctx(c.UserContext()).Error().Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Msg("request failed")

		switch status {
		case fiber.StatusServiceUnavailable:
			msg = "The assistant is temporarily unavailable. Please try again."
		case fiber.StatusGatewayTimeout:
			msg = "The request timed out. Please try again."
		default:
			msg = "Internal server error"
		}
	}
	return c.Status(status).JSON(errorBody{Error: msg})
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/example/bakery/internal/services"
)

var domainStatus = map[services.ErrorCode]int{
	services.CodeValidation:         fiber.StatusBadRequest,
	services.CodeNotFound:           fiber.StatusNotFound,
	services.CodeUnavailable:        fiber.StatusConflict,
	services.CodeInsufficientPoints: fiber.StatusConflict,
	services.CodeInvalidTransition:  fiber.StatusConflict,
	services.CodeForbidden:          fiber.StatusForbidden,
	services.CodeConflict:           fiber.StatusConflict,
}

// ErrorHandler renders DomainError and fiber.Error as the JSON error envelope.
// Anything else is logged and hidden behind a 500.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			status, ok := domainStatus[domainErr.Code]
			if !ok {
				status = fiber.StatusBadRequest
			}
			return c.Status(status).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
					"data":    domainErr.Data,
				},
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    httpErrorCode(fiberErr.Code),
					"message": fiberErr.Message,
				},
			})
		}

		log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error": fiber.Map{
				"code":    "internal_error",
				"message": "internal server error",
			},
		})
	}
}

func httpErrorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return string(services.CodeValidation)
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return string(services.CodeForbidden)
	case fiber.StatusNotFound:
		return string(services.CodeNotFound)
	case fiber.StatusConflict:
		return string(services.CodeConflict)
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	}
	return "http_error"
}

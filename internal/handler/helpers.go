package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/libreta-api/internal/middleware"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

func parseParamUint(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func badRequest(c *fiber.Ctx, message string) error {
	return utils.SendErrorCode(c, fiber.StatusBadRequest, service.CodeValidation, message, nil)
}

// respondError maps the service error taxonomy onto HTTP statuses. Anything
// untyped is logged and reported as a 500 without leaking internals.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	var validation *service.ValidationError
	var missing *service.NotFoundError
	var conflict *service.ConflictError
	var failed *service.ProcessingError

	switch {
	case errors.As(err, &validation):
		status := fiber.StatusBadRequest
		if validation.Code == service.CodeFileTooLarge {
			status = fiber.StatusRequestEntityTooLarge
		}
		var details interface{}
		if len(validation.Fields) > 0 {
			details = validation.Fields
		}
		return utils.SendErrorCode(c, status, validation.Code, validation.Error(), details)
	case errors.As(err, &missing):
		status := fiber.StatusNotFound
		if missing.Code == service.CodeTokenInvalid {
			status = fiber.StatusBadRequest
		}
		return utils.SendErrorCode(c, status, missing.Code, missing.Resource+" not found", nil)
	case errors.As(err, &conflict):
		return utils.SendErrorCode(c, fiber.StatusConflict, conflict.Code, conflict.Error(), nil)
	case errors.As(err, &failed):
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.SendErrorCode(c, fiber.StatusInternalServerError, failed.Code, failed.Error(), nil)
	default:
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}

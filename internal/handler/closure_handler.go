package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/utils"
)

// ClosureHandler exposes closure state and period close endpoints.
type ClosureHandler struct {
	service service.ClosureService
	logger  zerolog.Logger
}

// NewClosureHandler constructs the handler.
func NewClosureHandler(service service.ClosureService, logger zerolog.Logger) *ClosureHandler {
	return &ClosureHandler{
		service: service,
		logger:  logger.With().Str("component", "closure_handler").Logger(),
	}
}

// Register wires closure routes. guards run before state changes only.
func (h *ClosureHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Get("", h.list)
	router.Post("", append(guards, h.setState)...)
}

// RegisterPeriods wires the one-shot period close.
func (h *ClosureHandler) RegisterPeriods(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/:id/close", append(guards, h.closePeriod)...)
}

func (h *ClosureHandler) setState(c *fiber.Ctx) error {
	var payload dto.ClosureStateRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	result, err := h.service.SetState(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to update closure state")
	}

	return utils.SendSuccess(c, "closure state updated", result)
}

func (h *ClosureHandler) list(c *fiber.Ctx) error {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil || courseID == 0 {
		return badRequest(c, "invalid course_id")
	}
	sectionID, err := parseQueryUint(c, "section_id")
	if err != nil || sectionID == 0 {
		return badRequest(c, "invalid section_id")
	}

	items, err := h.service.List(c.UserContext(), courseID, sectionID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list closure states")
	}

	return utils.SendSuccess(c, "closure states", items)
}

func (h *ClosureHandler) closePeriod(c *fiber.Ctx) error {
	periodID, err := parseParamUint(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	period, err := h.service.ClosePeriod(c.UserContext(), periodID, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to close period")
	}

	return utils.SendSuccess(c, "period closed", period)
}

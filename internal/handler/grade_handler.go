package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/utils"
)

// GradeHandler records raw monthly and exam grades.
type GradeHandler struct {
	service service.GradeEntryService
	logger  zerolog.Logger
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(service service.GradeEntryService, logger zerolog.Logger) *GradeHandler {
	return &GradeHandler{
		service: service,
		logger:  logger.With().Str("component", "grade_handler").Logger(),
	}
}

// Register wires grade entry routes.
func (h *GradeHandler) Register(router fiber.Router) {
	router.Post("/monthly", h.monthly)
	router.Post("/exam", h.exam)
}

func (h *GradeHandler) monthly(c *fiber.Ctx) error {
	var payload dto.MonthlyGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	grade, err := h.service.RecordMonthly(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record monthly grade")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "monthly grade recorded", grade)
}

func (h *GradeHandler) exam(c *fiber.Ctx) error {
	var payload dto.ExamGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	grade, err := h.service.RecordExam(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record exam grade")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam grade recorded", grade)
}

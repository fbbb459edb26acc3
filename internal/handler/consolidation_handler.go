package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/utils"
)

// ConsolidationHandler exposes bimester and annual consolidation endpoints.
type ConsolidationHandler struct {
	bimesters service.BimesterService
	annual    service.AnnualService
	logger    zerolog.Logger
}

// NewConsolidationHandler constructs the handler.
func NewConsolidationHandler(bimesters service.BimesterService, annual service.AnnualService, logger zerolog.Logger) *ConsolidationHandler {
	return &ConsolidationHandler{
		bimesters: bimesters,
		annual:    annual,
		logger:    logger.With().Str("component", "consolidation_handler").Logger(),
	}
}

// Register wires consolidation routes.
func (h *ConsolidationHandler) Register(router fiber.Router) {
	bimester := router.Group("/bimester")
	bimester.Get("/preconditions", h.preconditions)
	bimester.Get("/preview", h.preview)
	bimester.Get("", h.listBimesters)
	bimester.Post("", h.consolidateBimester)

	annual := router.Group("/annual")
	annual.Get("/report", h.annualReport)
	annual.Post("", h.consolidateAnnual)
}

func (h *ConsolidationHandler) preconditions(c *fiber.Ctx) error {
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil || studentID == 0 {
		return badRequest(c, "invalid student_id")
	}
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil || courseID == 0 {
		return badRequest(c, "invalid course_id")
	}
	bimesterID, err := parseQueryUint(c, "bimester_id")
	if err != nil || bimesterID == 0 {
		return badRequest(c, "invalid bimester_id")
	}

	result, err := h.bimesters.CheckPreconditions(c.UserContext(), studentID, courseID, bimesterID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to check preconditions")
	}

	return utils.SendSuccess(c, "preconditions evaluated", result)
}

func (h *ConsolidationHandler) preview(c *fiber.Ctx) error {
	req := dto.BimesterPreviewRequest{}
	var err error
	if req.StudentID, err = parseQueryUint(c, "student_id"); err != nil {
		return badRequest(c, "invalid student_id")
	}
	if req.CourseID, err = parseQueryUint(c, "course_id"); err != nil {
		return badRequest(c, "invalid course_id")
	}
	if req.SectionID, err = parseQueryUint(c, "section_id"); err != nil {
		return badRequest(c, "invalid section_id")
	}
	if req.Bimester, err = parseQueryInt(c, "bimester"); err != nil {
		return badRequest(c, "invalid bimester")
	}

	result, err := h.bimesters.Preview(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to preview bimester")
	}

	return utils.SendSuccess(c, "bimester preview", result)
}

// consolidateBimester answers 200 even when preconditions are unmet or data
// is missing; callers poll the flags in the result.
func (h *ConsolidationHandler) consolidateBimester(c *fiber.Ctx) error {
	var payload dto.BimesterConsolidationRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	result, err := h.bimesters.Consolidate(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to consolidate bimester")
	}

	message := "bimester consolidated"
	if !result.PreconditionsMet {
		message = "bimester not consolidated"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *ConsolidationHandler) listBimesters(c *fiber.Ctx) error {
	req := dto.BimesterListRequest{}
	var err error
	if req.StudentID, err = parseQueryUint(c, "student_id"); err != nil {
		return badRequest(c, "invalid student_id")
	}
	if req.CourseID, err = parseQueryUint(c, "course_id"); err != nil {
		return badRequest(c, "invalid course_id")
	}
	if req.BimesterID, err = parseQueryUint(c, "bimester_id"); err != nil {
		return badRequest(c, "invalid bimester_id")
	}

	items, err := h.bimesters.List(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list bimester consolidations")
	}

	return utils.SendSuccess(c, "bimester consolidations", items)
}

func (h *ConsolidationHandler) consolidateAnnual(c *fiber.Ctx) error {
	var payload dto.AnnualConsolidationRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}

	result, err := h.annual.Consolidate(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to consolidate year")
	}

	return utils.SendSuccess(c, "annual consolidated", result)
}

func (h *ConsolidationHandler) annualReport(c *fiber.Ctx) error {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return badRequest(c, "invalid course_id")
	}

	report, err := h.annual.CourseReport(c.UserContext(), courseID, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to build annual report")
	}

	return utils.SendSuccess(c, "annual report", report)
}

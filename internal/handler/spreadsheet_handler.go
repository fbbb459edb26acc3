package handler

import (
	"io"
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SpreadsheetHandler exposes the UGEL workbook upload/export round trip.
type SpreadsheetHandler struct {
	service service.SpreadsheetService
	logger  zerolog.Logger
}

// NewSpreadsheetHandler constructs the handler.
func NewSpreadsheetHandler(service service.SpreadsheetService, logger zerolog.Logger) *SpreadsheetHandler {
	return &SpreadsheetHandler{
		service: service,
		logger:  logger.With().Str("component", "spreadsheet_handler").Logger(),
	}
}

// Register wires workbook routes. uploadGuards (rate limiting) run before the
// multipart upload only.
func (h *SpreadsheetHandler) Register(router fiber.Router, uploadGuards ...fiber.Handler) {
	router.Post("/upload", append(uploadGuards, h.upload)...)
	router.Get("/consolidado", h.consolidation)
	router.Post("/export", h.export)
	router.Get("/download", h.download)
	router.Get("/template", h.template)
}

func (h *SpreadsheetHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, service.CodeFileRequired, service.ErrFileRequired.Error(), nil)
	}

	reader, err := file.Open()
	if err != nil {
		return respondError(c, h.logger, err, "failed to read upload")
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return respondError(c, h.logger, err, "failed to read upload")
	}

	result, err := h.service.Upload(c.UserContext(), data, file.Filename, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "upload failed")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "upload successful", result)
}

func (h *SpreadsheetHandler) consolidation(c *fiber.Ctx) error {
	var query dto.ConsolidationRequest
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, "invalid query parameters")
	}
	if strings.TrimSpace(query.UploadID) == "" {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, service.CodeTokenInvalid, "upload_id is required", nil)
	}

	result, err := h.service.Consolidation(c.UserContext(), query)
	if err != nil {
		return respondError(c, h.logger, err, "consolidation failed")
	}

	return utils.SendSuccess(c, "consolidation computed", result)
}

func (h *SpreadsheetHandler) export(c *fiber.Ctx) error {
	var payload dto.ExportRequest
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "invalid payload")
	}
	if strings.TrimSpace(payload.UploadID) == "" {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, service.CodeTokenInvalid, "upload_id is required", nil)
	}

	result, err := h.service.ExportUpload(c.UserContext(), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "export failed")
	}

	return sendWorkbook(c, result)
}

func (h *SpreadsheetHandler) download(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, service.CodeTokenInvalid, "token is required", nil)
	}

	result, err := h.service.Download(c.UserContext(), token)
	if err != nil {
		return respondError(c, h.logger, err, "download failed")
	}

	return sendWorkbook(c, result)
}

func (h *SpreadsheetHandler) template(c *fiber.Ctx) error {
	result, err := h.service.Template(c.UserContext(), dto.TemplateRequest{
		Grade:   c.Query("grade"),
		Section: c.Query("section"),
		Year:    c.Query("year"),
	})
	if err != nil {
		return respondError(c, h.logger, err, "template generation failed")
	}

	return sendWorkbook(c, result)
}

// sendWorkbook streams an xlsx under its caller-visible name. Non-ASCII names
// are encoded per RFC 2231 by mime.FormatMediaType.
func sendWorkbook(c *fiber.Ctx, result service.DownloadResult) error {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Set(fiber.HeaderContentDisposition, disposition)
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Status(fiber.StatusOK).Send(result.Bytes)
}

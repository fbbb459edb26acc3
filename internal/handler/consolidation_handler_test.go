package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/handler"
	"github.com/noah-isme/libreta-api/internal/service"
)

type mockBimesterService struct {
	result      dto.BimesterResult
	err         error
	lastRequest dto.BimesterConsolidationRequest
	lastPreview dto.BimesterPreviewRequest
}

func (m *mockBimesterService) CheckPreconditions(_ context.Context, _, _, bimesterID uint) (dto.PreconditionResult, error) {
	if bimesterID == 99 {
		return dto.PreconditionResult{Met: false, Reasons: []string{service.ReasonBimesterNotFound}}, nil
	}
	return dto.PreconditionResult{Met: true, Reasons: []string{}}, nil
}

func (m *mockBimesterService) Consolidate(_ context.Context, req dto.BimesterConsolidationRequest, _ service.ActivityActor) (dto.BimesterResult, error) {
	m.lastRequest = req
	return m.result, m.err
}

func (m *mockBimesterService) Preview(_ context.Context, req dto.BimesterPreviewRequest) (dto.BimesterPreviewResponse, error) {
	m.lastPreview = req
	return dto.BimesterPreviewResponse{Bimester: req.Bimester, FinalAverage: "7.75", ExamMissing: true}, m.err
}

func (m *mockBimesterService) List(context.Context, dto.BimesterListRequest) ([]dto.BimesterResult, error) {
	return []dto.BimesterResult{m.result}, m.err
}

type mockAnnualService struct {
	result dto.AnnualResult
	err    error
}

func (m *mockAnnualService) Consolidate(context.Context, dto.AnnualConsolidationRequest, service.ActivityActor) (dto.AnnualResult, error) {
	return m.result, m.err
}

func (m *mockAnnualService) CourseReport(_ context.Context, courseID uint, _ service.ActivityActor) (dto.AnnualReportResponse, error) {
	return dto.AnnualReportResponse{CourseID: courseID, Items: []dto.AnnualResult{m.result}}, m.err
}

func consolidationApp(b service.BimesterService, a service.AnnualService) *fiber.App {
	app := newTestApp(1, "teacher")
	handler.NewConsolidationHandler(b, a, zerolog.New(io.Discard)).Register(app.Group("/api/v1/consolidations"))
	return app
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestConsolidationHandler_BimesterAcceptsDecimalStrings(t *testing.T) {
	final := "13.34"
	svc := &mockBimesterService{result: dto.BimesterResult{FinalAverage: &final, PreconditionsMet: true, Errors: []string{}}}
	app := consolidationApp(svc, &mockAnnualService{})

	resp, err := app.Test(postJSON("/api/v1/consolidations/bimester", `{"student_id":1,"course_id":2,"bimester_id":3,"monthly_average":"13.35","exam_score":13.32}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "13.35", svc.lastRequest.MonthlyAverage.String())
	require.Equal(t, "13.32", svc.lastRequest.ExamScore.String())

	var body struct {
		Message string             `json:"message"`
		Data    dto.BimesterResult `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "bimester consolidated", body.Message)
	require.Equal(t, "13.34", *body.Data.FinalAverage)
}

func TestConsolidationHandler_UnmetPreconditionsAreNotErrors(t *testing.T) {
	svc := &mockBimesterService{result: dto.BimesterResult{PreconditionsMet: false, Errors: []string{service.ReasonBimesterNotClosed}}}
	app := consolidationApp(svc, &mockAnnualService{})

	resp, err := app.Test(postJSON("/api/v1/consolidations/bimester", `{"student_id":1,"course_id":2,"bimester_id":3,"monthly_average":"15","exam_score":"15"}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Message string             `json:"message"`
		Data    dto.BimesterResult `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "bimester not consolidated", body.Message)
	require.Nil(t, body.Data.FinalAverage)
	require.Equal(t, []string{service.ReasonBimesterNotClosed}, body.Data.Errors)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/consolidations/bimester/preconditions?student_id=1&course_id=2&bimester_id=99", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var pre struct {
		Data dto.PreconditionResult `json:"data"`
	}
	decodeResponse(t, resp, &pre)
	require.False(t, pre.Data.Met)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/consolidations/bimester/preconditions?student_id=1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConsolidationHandler_PreviewParsesQuery(t *testing.T) {
	svc := &mockBimesterService{}
	app := consolidationApp(svc, &mockAnnualService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/consolidations/bimester/preview?student_id=1&course_id=2&section_id=3&bimester=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 2, svc.lastPreview.Bimester)
	require.Equal(t, uint(3), svc.lastPreview.SectionID)
}

func TestConsolidationHandler_AnnualNotFound(t *testing.T) {
	annual := &mockAnnualService{err: &service.NotFoundError{Code: service.CodeNotFound, Resource: "student"}}
	app := consolidationApp(&mockBimesterService{}, annual)

	resp, err := app.Test(postJSON("/api/v1/consolidations/annual", `{"student_id":77,"course_id":2}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	require.Equal(t, service.CodeNotFound, body.Code)
	require.Equal(t, "student not found", body.Message)
}

func TestConsolidationHandler_AnnualReport(t *testing.T) {
	rank := 1
	annual := &mockAnnualService{result: dto.AnnualResult{StudentID: 1, FinalAverage: "14.00", Letter: "A", Rank: &rank}}
	app := consolidationApp(&mockBimesterService{}, annual)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/consolidations/annual/report?course_id=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.AnnualReportResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, uint(2), body.Data.CourseID)
	require.Equal(t, "A", body.Data.Items[0].Letter)
}

package handler_test

import (
	"context"
	"errors"
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
	"github.com/noah-isme/libreta-api/internal/middleware"
	"github.com/noah-isme/libreta-api/internal/repository"
	"github.com/noah-isme/libreta-api/internal/service"
)

type mockClosureService struct {
	lastRequest dto.ClosureStateRequest
	lastActor   service.ActivityActor
	setErr      error
	closeErr    error
	listItems   []dto.ClosureStateResponse
}

func (m *mockClosureService) SetState(_ context.Context, req dto.ClosureStateRequest, actor service.ActivityActor) (dto.ClosureStateResponse, error) {
	m.lastRequest = req
	m.lastActor = actor
	if m.setErr != nil {
		return dto.ClosureStateResponse{}, m.setErr
	}
	return dto.ClosureStateResponse{CourseID: req.CourseID, SectionID: req.SectionID, PeriodUnit: req.PeriodUnit, State: req.State, Previous: "OPEN"}, nil
}

func (m *mockClosureService) State(context.Context, repository.ClosureKey) (dto.ClosureStateResponse, error) {
	return dto.ClosureStateResponse{}, nil
}

func (m *mockClosureService) List(_ context.Context, courseID, sectionID uint) ([]dto.ClosureStateResponse, error) {
	return m.listItems, nil
}

func (m *mockClosureService) AssertNotClosed(service.Closable) error { return nil }

func (m *mockClosureService) Guard(ctx context.Context, _ func(context.Context) (service.Closable, error), mutate func(context.Context) error) error {
	return mutate(ctx)
}

func (m *mockClosureService) ScopeLookup(repository.ClosureKey) func(context.Context) (service.Closable, error) {
	return nil
}

func (m *mockClosureService) PeriodLookup(uint) func(context.Context) (service.Closable, error) {
	return nil
}

func (m *mockClosureService) ClosePeriod(_ context.Context, periodID uint, _ service.ActivityActor) (dto.PeriodResponse, error) {
	if m.closeErr != nil {
		return dto.PeriodResponse{}, m.closeErr
	}
	return dto.PeriodResponse{ID: periodID, Closed: true}, nil
}

func closureApp(svc service.ClosureService, role string) *fiber.App {
	app := newTestApp(4, role)
	h := handler.NewClosureHandler(svc, zerolog.New(io.Discard))
	guard := middleware.RequireRole(middleware.RoleDirector, middleware.RoleCoordinator)
	h.Register(app.Group("/api/v1/closures"), guard)
	h.RegisterPeriods(app.Group("/api/v1/periods"), guard)
	return app
}

func TestClosureHandler_SetState(t *testing.T) {
	svc := &mockClosureService{}
	app := closureApp(svc, "coordinator")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/closures", strings.NewReader(`{"course_id":1,"section_id":2,"period_unit":5,"state":"CLOSED"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                     `json:"success"`
		Data    dto.ClosureStateResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "OPEN", body.Data.Previous)
	require.Equal(t, 5, svc.lastRequest.PeriodUnit)
	require.Equal(t, uint(4), svc.lastActor.ID)
}

func TestClosureHandler_SetStateRequiresRole(t *testing.T) {
	app := closureApp(&mockClosureService{}, "teacher")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/closures", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/closures?course_id=1&section_id=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestClosureHandler_ValidationError(t *testing.T) {
	svc := &mockClosureService{setErr: &service.ValidationError{
		Code:    service.CodeValidation,
		Message: "invalid fields: state",
		Fields:  []service.FieldError{{Field: "state", Message: "must be one of OPEN UNDER_REVIEW CLOSED"}},
	}}
	app := closureApp(svc, "director")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/closures", strings.NewReader(`{"course_id":1,"section_id":2,"period_unit":5,"state":"LOCKED"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	require.Equal(t, service.CodeValidation, body.Code)
	require.Contains(t, string(body.Details), `"field":"state"`)
}

func TestClosureHandler_ClosePeriodTwice(t *testing.T) {
	svc := &mockClosureService{}
	app := closureApp(svc, "director")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/periods/3/close", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	svc.closeErr = &service.ConflictError{Code: service.CodeConflict, Message: service.ErrPeriodAlreadyClosed.Error(), Err: service.ErrPeriodAlreadyClosed}
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/periods/3/close", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, service.CodeConflict, decodeEnvelope(t, resp).Code)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/periods/abc/close", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	svc.closeErr = errors.New("db down")
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/periods/3/close", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "failed to close period", decodeEnvelope(t, resp).Message)
}

func TestClosureHandler_ListRequiresScope(t *testing.T) {
	app := closureApp(&mockClosureService{}, "director")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/closures?course_id=1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

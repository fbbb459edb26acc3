package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/handler"
	"github.com/noah-isme/libreta-api/internal/service"
	"github.com/noah-isme/libreta-api/internal/storage"
)

type mockSpreadsheetService struct {
	lastName   string
	lastData   []byte
	lastExport dto.ExportRequest
	lastTpl    dto.TemplateRequest
	lastQuery  dto.ConsolidationRequest
	uploadErr  error
	downErr    error
	consolErr  error
}

func (m *mockSpreadsheetService) Upload(_ context.Context, data []byte, name string, _ service.ActivityActor) (dto.UploadResponse, error) {
	m.lastName = name
	m.lastData = data
	if m.uploadErr != nil {
		return dto.UploadResponse{}, m.uploadErr
	}
	return dto.UploadResponse{UploadID: "tok-1", OriginalFilename: name, SizeBytes: int64(len(data))}, nil
}

func (m *mockSpreadsheetService) BuildConsolidation(context.Context, string, string, string) (dto.ConsolidationResponse, error) {
	return dto.ConsolidationResponse{}, nil
}

func (m *mockSpreadsheetService) Consolidation(_ context.Context, req dto.ConsolidationRequest) (dto.ConsolidationResponse, error) {
	m.lastQuery = req
	if m.consolErr != nil {
		return dto.ConsolidationResponse{}, m.consolErr
	}
	return dto.ConsolidationResponse{
		UploadID: req.UploadID,
		Sheet:    "2",
		Rows: []dto.SheetRow{{
			Line:          2,
			StudentID:     "1",
			Student:       "Ana",
			Course:        "Mat",
			BimesterCount: 2,
			Average:       decimal.RequireFromString("15.5"),
			Letter:        "A",
		}},
	}, nil
}

func (m *mockSpreadsheetService) Export(context.Context, string, string, []dto.SheetRow, map[string]string) ([]byte, error) {
	return nil, nil
}

func (m *mockSpreadsheetService) ExportUpload(_ context.Context, req dto.ExportRequest, _ service.ActivityActor) (service.DownloadResult, error) {
	m.lastExport = req
	if m.downErr != nil {
		return service.DownloadResult{}, m.downErr
	}
	return service.DownloadResult{Bytes: []byte("PK-export"), Filename: "RegNotas.xlsx"}, nil
}

func (m *mockSpreadsheetService) Download(_ context.Context, token string) (service.DownloadResult, error) {
	if m.downErr != nil {
		return service.DownloadResult{}, m.downErr
	}
	return service.DownloadResult{Bytes: []byte("PK-download"), Filename: "Registro 1A.xlsx"}, nil
}

func (m *mockSpreadsheetService) Template(_ context.Context, req dto.TemplateRequest) (service.DownloadResult, error) {
	m.lastTpl = req
	return service.DownloadResult{Bytes: []byte("PK-template"), Filename: "UGEL_G1_SA_2025.xlsx"}, nil
}

func spreadsheetApp(svc service.SpreadsheetService) *fiber.App {
	app := newTestApp(3, "teacher")
	handler.NewSpreadsheetHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/ugel"))
	return app
}

func multipartUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ugel/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSpreadsheetHandler_Upload(t *testing.T) {
	svc := &mockSpreadsheetService{}
	app := spreadsheetApp(svc)

	resp, err := app.Test(multipartUpload(t, "file", "RegNotas.xlsx", []byte("PK\x03\x04data")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "RegNotas.xlsx", svc.lastName)
	require.Equal(t, []byte("PK\x03\x04data"), svc.lastData)

	var body struct {
		Data dto.UploadResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "tok-1", body.Data.UploadID)
}

func TestSpreadsheetHandler_UploadErrors(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		err    error
		status int
		code   string
	}{
		{name: "missing", field: "other", status: fiber.StatusBadRequest, code: service.CodeFileRequired},
		{name: "type", field: "file", err: &service.ValidationError{Code: service.CodeInvalidFileType, Message: service.ErrInvalidFileType.Error()}, status: fiber.StatusBadRequest, code: service.CodeInvalidFileType},
		{name: "size", field: "file", err: &service.ValidationError{Code: service.CodeFileTooLarge, Message: service.ErrFileTooLarge.Error()}, status: fiber.StatusRequestEntityTooLarge, code: service.CodeFileTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := spreadsheetApp(&mockSpreadsheetService{uploadErr: tc.err})
			resp, err := app.Test(multipartUpload(t, tc.field, "notas.xlsx", []byte("x")))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.code, decodeEnvelope(t, resp).Code)
		})
	}
}

func TestSpreadsheetHandler_DownloadKeepsOriginalName(t *testing.T) {
	app := spreadsheetApp(&mockSpreadsheetService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ugel/download?token=tok-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), `filename="Registro 1A.xlsx"`)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "PK-download", string(payload))
}

func TestSpreadsheetHandler_DownloadTokenErrors(t *testing.T) {
	app := spreadsheetApp(&mockSpreadsheetService{downErr: &service.NotFoundError{Code: service.CodeTokenInvalid, Resource: "upload token", Err: storage.ErrTokenNotFound}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ugel/download?token=nope", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, service.CodeTokenInvalid, decodeEnvelope(t, resp).Code)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ugel/download", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	broken := spreadsheetApp(&mockSpreadsheetService{downErr: &service.ProcessingError{Code: service.CodeProcessing, Err: io.ErrUnexpectedEOF}})
	resp, err = broken.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ugel/download?token=tok-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	require.Equal(t, service.CodeProcessing, body.Code)
	require.Contains(t, body.Message, "unexpected EOF")
}

func TestSpreadsheetHandler_ExportAndTemplate(t *testing.T) {
	svc := &mockSpreadsheetService{}
	app := spreadsheetApp(svc)

	resp, err := app.Test(postJSON("/api/v1/ugel/export", `{"upload_id":"tok-1","grade":"2","course":"Mat","comments":{"1":"Bien"}}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "2", svc.lastExport.Grade)
	require.Equal(t, "Bien", svc.lastExport.Comments["1"])
	require.Contains(t, resp.Header.Get("Content-Disposition"), "RegNotas.xlsx")

	resp, err = app.Test(postJSON("/api/v1/ugel/export", `{"grade":"2"}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, service.CodeTokenInvalid, decodeEnvelope(t, resp).Code)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ugel/template?grade=1&section=A&year=2025", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "A", svc.lastTpl.Section)
	require.Contains(t, resp.Header.Get("Content-Disposition"), "UGEL_G1_SA_2025.xlsx")
}

func TestSpreadsheetHandler_Consolidation(t *testing.T) {
	svc := &mockSpreadsheetService{}
	app := spreadsheetApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ugel/consolidado?upload_id=tok-1&grade=2&course=Mat", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, dto.ConsolidationRequest{UploadID: "tok-1", Grade: "2", Course: "Mat"}, svc.lastQuery)

	var body struct {
		Data struct {
			UploadID string `json:"upload_id"`
			Sheet    string `json:"sheet"`
			Rows     []struct {
				StudentID string `json:"student_id"`
				Average   string `json:"average"`
				Letter    string `json:"letter"`
			} `json:"rows"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "tok-1", body.Data.UploadID)
	require.Equal(t, "2", body.Data.Sheet)
	require.Len(t, body.Data.Rows, 1)
	require.Equal(t, "15.50", body.Data.Rows[0].Average)
	require.Equal(t, "A", body.Data.Rows[0].Letter)
}

func TestSpreadsheetHandler_ConsolidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
		code   string
	}{
		{name: "missing upload id", target: "/api/v1/ugel/consolidado?grade=2", status: fiber.StatusBadRequest, code: service.CodeTokenInvalid},
		{name: "unknown token", target: "/api/v1/ugel/consolidado?upload_id=nope", err: &service.NotFoundError{Code: service.CodeTokenInvalid, Resource: "upload token", Err: storage.ErrTokenNotFound}, status: fiber.StatusBadRequest, code: service.CodeTokenInvalid},
		{name: "bad score", target: "/api/v1/ugel/consolidado?upload_id=tok-1", err: &service.ValidationError{Code: service.CodeValidation, Message: "B2 row 3", Fields: []service.FieldError{{Field: "B2 row 3", Message: "out of range"}}}, status: fiber.StatusBadRequest, code: service.CodeValidation},
		{name: "corrupt workbook", target: "/api/v1/ugel/consolidado?upload_id=tok-1", err: &service.ProcessingError{Code: service.CodeProcessing, Err: io.ErrUnexpectedEOF}, status: fiber.StatusInternalServerError, code: service.CodeProcessing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := spreadsheetApp(&mockSpreadsheetService{consolErr: tc.err})
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.target, nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.code, decodeEnvelope(t, resp).Code)
		})
	}
}

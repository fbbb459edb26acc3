package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/grading"
	"github.com/noah-isme/libreta-api/internal/observability"
	"github.com/noah-isme/libreta-api/internal/storage"
	"github.com/noah-isme/libreta-api/internal/workbook"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrUploadScanFailed indicates the archive inside the upload looked unsafe.
var ErrUploadScanFailed = errors.New("file scanning failed")

// SpreadsheetConfig tunes the upload pipeline.
type SpreadsheetConfig struct {
	MaxSizeMB    int
	TokenTTL     time.Duration
	DefaultGrade string
}

// DownloadResult is a workbook ready to be sent to the caller.
type DownloadResult struct {
	Bytes    []byte
	Filename string
}

// SpreadsheetService implements the UGEL workbook round trip.
type SpreadsheetService interface {
	Upload(ctx context.Context, data []byte, originalFilename string, actor ActivityActor) (dto.UploadResponse, error)
	BuildConsolidation(ctx context.Context, token, gradeFilter, courseFilter string) (dto.ConsolidationResponse, error)
	Consolidation(ctx context.Context, req dto.ConsolidationRequest) (dto.ConsolidationResponse, error)
	Export(ctx context.Context, token, gradeFilter string, rows []dto.SheetRow, comments map[string]string) ([]byte, error)
	ExportUpload(ctx context.Context, req dto.ExportRequest, actor ActivityActor) (DownloadResult, error)
	Download(ctx context.Context, token string) (DownloadResult, error)
	Template(ctx context.Context, req dto.TemplateRequest) (DownloadResult, error)
}

type spreadsheetService struct {
	tokens    storage.TokenStore
	files     storage.FileStore
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	maxSize   int64
	tokenTTL  time.Duration
	grade     string
	now       func() time.Time
}

// NewSpreadsheetService constructs the workbook pipeline.
func NewSpreadsheetService(tokens storage.TokenStore, files storage.FileStore, activity ActivityRecorder, validate *validator.Validate, cfg SpreadsheetConfig, logger zerolog.Logger) SpreadsheetService {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.DefaultGrade) == "" {
		cfg.DefaultGrade = "1"
	}
	return &spreadsheetService{
		tokens:    tokens,
		files:     files,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "spreadsheet_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/libreta-api/internal/service/spreadsheet"),
		maxSize:   int64(cfg.MaxSizeMB) * 1024 * 1024,
		tokenTTL:  cfg.TokenTTL,
		grade:     cfg.DefaultGrade,
		now:       time.Now,
	}
}

func (s *spreadsheetService) Upload(ctx context.Context, data []byte, originalFilename string, actor ActivityActor) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ugel.upload")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	name := cleanOriginalName(originalFilename)
	span.SetAttributes(
		attribute.String("upload.original_name", name),
		attribute.Int("upload.size_bytes", len(data)),
		attribute.Int64("upload.max_bytes", s.maxSize),
	)

	if len(data) == 0 || name == "" {
		observability.UploadRejected().WithLabelValues("missing").Inc()
		span.SetStatus(codes.Error, "file missing")
		return dto.UploadResponse{}, &ValidationError{Code: CodeFileRequired, Message: ErrFileRequired.Error(), Err: ErrFileRequired}
	}
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return dto.UploadResponse{}, s.reject(span, "extension", ErrInvalidFileType)
	}
	if int64(len(data)) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, &ValidationError{Code: CodeFileTooLarge, Message: ErrFileTooLarge.Error(), Err: ErrFileTooLarge}
	}

	detected := mimetype.Detect(data)
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if !detected.Is(xlsxMime) && !detected.Is("application/zip") {
		return dto.UploadResponse{}, s.reject(span, "type", ErrInvalidFileType)
	}
	if err := s.scan(data); err != nil {
		return dto.UploadResponse{}, s.reject(span, "scan", err)
	}

	book, err := workbook.Open(bytes.NewReader(data))
	if err != nil {
		return dto.UploadResponse{}, s.reject(span, "unreadable", fmt.Errorf("%w: %v", ErrInvalidFileType, err))
	}
	sheets := book.Sheets()
	_ = book.Close()

	token := uuid.NewString()
	path, err := s.files.Save(ctx, token+".xlsx", bytes.NewReader(data))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadResponse{}, fmt.Errorf("store upload: %w", err)
	}

	checksum := sha256.Sum256(data)
	record := storage.TokenRecord{
		Token:            token,
		Path:             path,
		OriginalFilename: name,
		SizeBytes:        int64(len(data)),
		Checksum:         hex.EncodeToString(checksum[:]),
		UploadedBy:       actor.ID,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.tokens.Put(ctx, record, s.tokenTTL); err != nil {
		_ = s.files.Remove(ctx, path)
		span.RecordError(err)
		span.SetStatus(codes.Error, "token failed")
		return dto.UploadResponse{}, fmt.Errorf("register upload token: %w", err)
	}

	observability.UploadRequests().WithLabelValues(detected.String()).Inc()
	s.logger.Info().Str("token", token).Str("original_filename", name).Int("size_bytes", len(data)).Msg("workbook uploaded")
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "ugel.upload",
		EntityType: "upload",
		EntityKey:  token,
		Metadata: map[string]interface{}{
			"original_filename": name,
			"size_bytes":        len(data),
		},
	})

	span.SetStatus(codes.Ok, "stored")
	return dto.UploadResponse{
		UploadID:         token,
		OriginalFilename: name,
		SizeBytes:        record.SizeBytes,
		Checksum:         record.Checksum,
		Sheets:           sheets,
	}, nil
}

func (s *spreadsheetService) reject(span trace.Span, reason string, err error) error {
	observability.UploadRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected: "+reason)
	return &ValidationError{Code: CodeInvalidFileType, Message: ErrInvalidFileType.Error(), Err: err}
}

// scan refuses archives whose uncompressed size is far above the upload cap.
func (s *spreadsheetService) scan(payload []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadScanFailed, err)
	}
	var total uint64
	for _, f := range reader.File {
		total += f.UncompressedSize64
		if total > uint64(s.maxSize*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}
	return nil
}

func (s *spreadsheetService) BuildConsolidation(ctx context.Context, token, gradeFilter, courseFilter string) (dto.ConsolidationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ugel.build_consolidation")
	defer span.End()

	record, book, err := s.open(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.ConsolidationResponse{}, err
	}
	defer book.Close()

	start := time.Now()
	sheet := book.ResolveSheet(gradeFilter)
	rows, _, err := book.ReadRows(sheet)
	observability.WorkbookLatency().WithLabelValues("read").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.ConsolidationResponse{}, readError(err)
	}

	courseFilter = strings.TrimSpace(courseFilter)
	computed := make([]dto.SheetRow, 0, len(rows))
	for _, row := range rows {
		if courseFilter != "" && row.Course != "" && !strings.EqualFold(row.Course, courseFilter) {
			continue
		}
		count := 0
		for _, b := range row.Bimesters {
			if b.Valid {
				count++
			}
		}
		average := grading.AverageNullable(row.Bimesters[:])
		computed = append(computed, dto.SheetRow{
			Line:          row.Line,
			StudentID:     row.StudentID,
			Student:       row.Student,
			Course:        row.Course,
			Bimesters:     row.Bimesters,
			BimesterCount: count,
			Average:       average,
			Letter:        string(grading.BandRounded(average)),
		})
	}

	span.SetAttributes(attribute.String("ugel.sheet", sheet), attribute.Int("ugel.rows", len(computed)))
	span.SetStatus(codes.Ok, "built")
	return dto.ConsolidationResponse{UploadID: record.Token, Sheet: sheet, Rows: computed}, nil
}

func (s *spreadsheetService) Export(ctx context.Context, token, gradeFilter string, rows []dto.SheetRow, comments map[string]string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "ugel.export")
	defer span.End()

	_, book, err := s.open(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return nil, err
	}
	defer book.Close()

	byStudent := make(map[string]string, len(comments))
	for id, comment := range comments {
		byStudent[workbook.NormalizeID(id)] = comment
	}

	results := make([]workbook.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, workbook.Result{
			StudentID: row.StudentID,
			Average:   row.Average,
			Letter:    row.Letter,
			Comment:   s.cleanComment(byStudent[workbook.NormalizeID(row.StudentID)]),
		})
	}

	start := time.Now()
	sheet := book.ResolveSheet(gradeFilter)
	_, layout, err := book.ReadRows(sheet)
	if err != nil {
		span.RecordError(err)
		return nil, readError(err)
	}
	written, err := book.WriteResults(sheet, layout, results)
	if err != nil {
		span.RecordError(err)
		return nil, processing(err)
	}
	out, err := book.Bytes()
	observability.WorkbookLatency().WithLabelValues("write").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, processing(err)
	}

	span.SetAttributes(attribute.String("ugel.sheet", sheet), attribute.Int("ugel.rows_written", written))
	span.SetStatus(codes.Ok, "exported")
	return out, nil
}

// Consolidation validates the query and computes the selected sheet. An empty
// grade falls back to the configured default sheet.
func (s *spreadsheetService) Consolidation(ctx context.Context, req dto.ConsolidationRequest) (dto.ConsolidationResponse, error) {
	req.UploadID = strings.TrimSpace(req.UploadID)
	req.Grade = strings.TrimSpace(req.Grade)
	req.Course = strings.TrimSpace(req.Course)
	if err := s.validate(req); err != nil {
		return dto.ConsolidationResponse{}, err
	}
	if req.Grade == "" {
		req.Grade = s.grade
	}
	return s.BuildConsolidation(ctx, req.UploadID, req.Grade, req.Course)
}

func (s *spreadsheetService) ExportUpload(ctx context.Context, req dto.ExportRequest, actor ActivityActor) (DownloadResult, error) {
	req.UploadID = strings.TrimSpace(req.UploadID)
	req.Grade = strings.TrimSpace(req.Grade)
	req.Course = strings.TrimSpace(req.Course)
	if err := s.validate(req); err != nil {
		return DownloadResult{}, err
	}

	record, err := s.resolve(ctx, req.UploadID)
	if err != nil {
		return DownloadResult{}, err
	}

	grade := req.Grade
	if grade == "" {
		grade = s.grade
	}

	built, err := s.BuildConsolidation(ctx, record.Token, grade, req.Course)
	if err != nil {
		return DownloadResult{}, err
	}
	out, err := s.Export(ctx, record.Token, grade, built.Rows, req.Comments)
	if err != nil {
		return DownloadResult{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "ugel.export",
		EntityType: "upload",
		EntityKey:  record.Token,
		Metadata: map[string]interface{}{
			"sheet": built.Sheet,
			"rows":  len(built.Rows),
		},
	})

	return DownloadResult{Bytes: out, Filename: record.OriginalFilename}, nil
}

// Download re-runs build and export with the default grade sheet and returns
// the workbook under the name it was uploaded with.
func (s *spreadsheetService) Download(ctx context.Context, token string) (DownloadResult, error) {
	return s.ExportUpload(ctx, dto.ExportRequest{UploadID: token}, ActivityActor{Role: "system"})
}

func (s *spreadsheetService) Template(ctx context.Context, req dto.TemplateRequest) (DownloadResult, error) {
	_, span := s.tracer.Start(ctx, "ugel.template")
	defer span.End()

	req.Grade = strings.TrimSpace(req.Grade)
	req.Section = strings.ToUpper(strings.TrimSpace(req.Section))
	req.Year = strings.TrimSpace(req.Year)
	if req.Grade == "" {
		req.Grade = s.grade
	}
	if req.Year == "" {
		req.Year = fmt.Sprintf("%d", s.now().Year())
	}
	if err := s.validate(req); err != nil {
		span.SetStatus(codes.Error, "invalid template request")
		return DownloadResult{}, err
	}

	data, err := workbook.Template(req.Grade)
	if err != nil {
		span.RecordError(err)
		return DownloadResult{}, processing(err)
	}
	return DownloadResult{
		Bytes:    data,
		Filename: ExportFileName("UGEL", "G"+req.Grade, "S"+req.Section, req.Year),
	}, nil
}

// ExportFileName is the {entity}_{level}_{grade}_{period}.xlsx naming contract.
func ExportFileName(entity, level, grade, period string) string {
	return workbook.FileName(entity, level, grade, period)
}

func (s *spreadsheetService) resolve(ctx context.Context, token string) (storage.TokenRecord, error) {
	record, err := s.tokens.Get(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return storage.TokenRecord{}, &NotFoundError{Code: CodeTokenInvalid, Resource: "upload token", Err: err}
		}
		return storage.TokenRecord{}, fmt.Errorf("resolve upload token: %w", err)
	}
	return record, nil
}

func (s *spreadsheetService) open(ctx context.Context, token string) (storage.TokenRecord, *workbook.Book, error) {
	record, err := s.resolve(ctx, token)
	if err != nil {
		return storage.TokenRecord{}, nil, err
	}

	handle, err := s.files.Open(ctx, record.Path)
	if err != nil {
		if errors.Is(err, storage.ErrFileMissing) {
			if delErr := s.tokens.Delete(ctx, record.Token); delErr != nil {
				s.logger.Warn().Err(delErr).Str("token", record.Token).Msg("failed to drop stale upload token")
			}
			return storage.TokenRecord{}, nil, &NotFoundError{Code: CodeTokenInvalid, Resource: "upload file", Err: err}
		}
		return storage.TokenRecord{}, nil, processing(err)
	}
	defer handle.Close()

	book, err := workbook.Open(handle)
	if err != nil {
		s.logger.Warn().Err(err).Str("token", record.Token).Msg("stored workbook unreadable")
		return storage.TokenRecord{}, nil, processing(err)
	}
	return record, book, nil
}

func (s *spreadsheetService) validate(req interface{}) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.Struct(req); err != nil {
		return newValidationError(err)
	}
	return nil
}

// cleanComment strips markup and decodes the entities the policy escapes, since
// the cell is written as a plain string.
func (s *spreadsheetService) cleanComment(comment string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(comment)))
}

// readError reports a rejected bimester cell as a validation failure naming
// its row and column. Anything else is a processing error.
func readError(err error) error {
	var scoreErr *workbook.ScoreError
	if !errors.As(err, &scoreErr) {
		return processing(err)
	}
	field := fmt.Sprintf("%s row %d", scoreErr.Column, scoreErr.Line)
	return &ValidationError{
		Code:    CodeValidation,
		Message: scoreErr.Error(),
		Fields:  []FieldError{{Field: field, Message: scoreErr.Err.Error()}},
		Err:     err,
	}
}

// cleanOriginalName keeps the caller's filename but drops any directory part
// a browser may have sent along.
func cleanOriginalName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSpace(name)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/grading"
	"github.com/noah-isme/libreta-api/internal/models"
	"github.com/noah-isme/libreta-api/internal/observability"
	"github.com/noah-isme/libreta-api/internal/repository"
)

// Reasons reported to callers polling consolidation readiness.
const (
	ReasonBimesterNotFound  = "Bimestre no encontrado"
	ReasonBimesterNotClosed = "El bimestre no está cerrado"
	ReasonDataNotFound      = "Datos no encontrados"
)

// BimesterService applies the 50/50 rule to closed bimesters.
type BimesterService interface {
	CheckPreconditions(ctx context.Context, studentID, courseID, bimesterID uint) (dto.PreconditionResult, error)
	Consolidate(ctx context.Context, req dto.BimesterConsolidationRequest, actor ActivityActor) (dto.BimesterResult, error)
	Preview(ctx context.Context, req dto.BimesterPreviewRequest) (dto.BimesterPreviewResponse, error)
	List(ctx context.Context, req dto.BimesterListRequest) ([]dto.BimesterResult, error)
}

type bimesterService struct {
	students      repository.StudentRepository
	courses       repository.CourseRepository
	periods       repository.PeriodRepository
	grades        repository.GradeRepository
	consolidation repository.ConsolidationRepository
	validator     *validator.Validate
	activity      ActivityRecorder
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// BimesterDependencies groups the repositories the consolidator reads.
type BimesterDependencies struct {
	Students      repository.StudentRepository
	Courses       repository.CourseRepository
	Periods       repository.PeriodRepository
	Grades        repository.GradeRepository
	Consolidation repository.ConsolidationRepository
}

// NewBimesterService constructs the bimester consolidator.
func NewBimesterService(deps BimesterDependencies, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) BimesterService {
	return &bimesterService{
		students:      deps.Students,
		courses:       deps.Courses,
		periods:       deps.Periods,
		grades:        deps.Grades,
		consolidation: deps.Consolidation,
		validator:     validate,
		activity:      activity,
		logger:        logger.With().Str("component", "bimester_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/libreta-api/internal/service/bimester"),
		now:           time.Now,
	}
}

func (s *bimesterService) CheckPreconditions(ctx context.Context, studentID, courseID, bimesterID uint) (dto.PreconditionResult, error) {
	result := dto.PreconditionResult{Reasons: []string{}}

	period, err := s.periods.GetByID(ctx, bimesterID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		result.Reasons = append(result.Reasons, ReasonBimesterNotFound)
	case err != nil:
		return dto.PreconditionResult{}, fmt.Errorf("load bimester: %w", err)
	case !period.IsClosed():
		result.Reasons = append(result.Reasons, ReasonBimesterNotClosed)
	}

	result.Met = len(result.Reasons) == 0
	s.logger.Debug().
		Uint("student_id", studentID).
		Uint("course_id", courseID).
		Uint("bimester_id", bimesterID).
		Bool("met", result.Met).
		Msg("preconditions checked")
	return result, nil
}

func (s *bimesterService) Consolidate(ctx context.Context, req dto.BimesterConsolidationRequest, actor ActivityActor) (dto.BimesterResult, error) {
	ctx, span := s.tracer.Start(ctx, "consolidation.bimester")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.BimesterResult{}, newValidationError(err)
	}
	if err := grading.Validate(*req.MonthlyAverage); err != nil {
		return dto.BimesterResult{}, fieldError("monthly_average", err)
	}
	if err := grading.Validate(*req.ExamScore); err != nil {
		return dto.BimesterResult{}, fieldError("exam_score", err)
	}

	span.SetAttributes(
		attribute.Int("consolidation.student_id", int(req.StudentID)),
		attribute.Int("consolidation.course_id", int(req.CourseID)),
		attribute.Int("consolidation.bimester_id", int(req.BimesterID)),
	)

	result := dto.BimesterResult{
		StudentID:  req.StudentID,
		CourseID:   req.CourseID,
		BimesterID: req.BimesterID,
		Errors:     []string{},
	}

	preconditions, err := s.CheckPreconditions(ctx, req.StudentID, req.CourseID, req.BimesterID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "precondition check failed")
		return dto.BimesterResult{}, err
	}

	student, course, period, err := s.resolve(ctx, req)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return dto.BimesterResult{}, err
	}
	if err != nil {
		observability.Consolidations().WithLabelValues("bimester", "not_found").Inc()
		result.NotFound = true
		result.Code = CodeNotFound
		result.Errors = []string{ReasonDataNotFound}
		span.SetStatus(codes.Ok, "not found")
		return result, nil
	}

	result.StudentName = student.Name
	result.StudentCode = student.DisplayCode()
	result.CourseName = course.Name
	result.BimesterName = period.Name

	if !preconditions.Met {
		observability.Consolidations().WithLabelValues("bimester", "preconditions").Inc()
		result.Errors = preconditions.Reasons
		span.SetStatus(codes.Ok, "preconditions not met")
		return result, nil
	}

	monthly := grading.Quantize(*req.MonthlyAverage)
	exam := grading.Quantize(*req.ExamScore)
	row := models.ConsolidatedBimester{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		BimesterID:     req.BimesterID,
		MonthlyAverage: decimal.NewNullDecimal(monthly),
		ExamScore:      decimal.NewNullDecimal(exam),
		FinalAverage:   decimal.NewNullDecimal(grading.Blend5050(monthly, exam)),
		Closed:         true,
		ComputedAt:     s.now().UTC(),
		Bimester:       period,
	}

	if err := s.consolidation.SaveBimester(ctx, &row); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.Consolidations().WithLabelValues("bimester", "duplicate").Inc()
			s.logger.Warn().Uint("student_id", req.StudentID).Uint("bimester_id", req.BimesterID).Msg("concurrent consolidation detected")
			result.Errors = []string{ErrAlreadyConsolidated.Error()}
			result.PreconditionsMet = true
			result.Closed = true
			return result, nil
		}
		observability.Consolidations().WithLabelValues("bimester", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.BimesterResult{}, fmt.Errorf("save bimester consolidation: %w", err)
	}

	observability.Consolidations().WithLabelValues("bimester", "ok").Inc()
	s.logger.Info().
		Uint("student_id", row.StudentID).
		Uint("course_id", row.CourseID).
		Uint("bimester_id", row.BimesterID).
		Str("final_average", row.FinalAverage.Decimal.StringFixed(grading.Scale)).
		Msg("bimester consolidated")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "consolidation.bimester",
		EntityType: "consolidated_bimester",
		EntityKey:  fmt.Sprintf("%d:%d:%d", row.StudentID, row.CourseID, row.BimesterID),
		Metadata: map[string]interface{}{
			"final_average": row.FinalAverage.Decimal.StringFixed(grading.Scale),
			"rank":          rankValue(row.Rank),
		},
	})

	success := dto.NewBimesterResult(row)
	success.StudentName = result.StudentName
	success.StudentCode = result.StudentCode
	success.CourseName = result.CourseName
	span.SetStatus(codes.Ok, "consolidated")
	return success, nil
}

// resolve loads the referenced identities; any missing one surfaces as
// gorm.ErrRecordNotFound.
func (s *bimesterService) resolve(ctx context.Context, req dto.BimesterConsolidationRequest) (models.Student, models.Course, models.Period, error) {
	student, err := s.students.GetByID(ctx, req.StudentID)
	if err != nil {
		return models.Student{}, models.Course{}, models.Period{}, err
	}
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return models.Student{}, models.Course{}, models.Period{}, err
	}
	period, err := s.periods.GetByID(ctx, req.BimesterID)
	if err != nil {
		return models.Student{}, models.Course{}, models.Period{}, err
	}
	return student, course, period, nil
}

// Preview blends the stored monthly rubric scores with the bimester exam
// without persisting anything. A missing exam counts as 0.00.
func (s *bimesterService) Preview(ctx context.Context, req dto.BimesterPreviewRequest) (dto.BimesterPreviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "consolidation.bimester_preview")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.BimesterPreviewResponse{}, newValidationError(err)
	}

	period, err := s.periods.GetByOrdinal(ctx, models.PeriodKindBimester, req.Bimester)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BimesterPreviewResponse{}, notFound("bimester", err)
		}
		span.RecordError(err)
		return dto.BimesterPreviewResponse{}, err
	}

	months := period.Months()
	grades, err := s.grades.MonthlyScores(ctx, req.StudentID, req.CourseID, req.SectionID, months)
	if err != nil {
		span.RecordError(err)
		return dto.BimesterPreviewResponse{}, fmt.Errorf("load monthly grades: %w", err)
	}
	scores := make([]decimal.Decimal, 0, len(grades))
	for _, g := range grades {
		scores = append(scores, g.Score)
	}
	monthly := grading.Average(scores)

	exam := decimal.Zero
	examMissing := false
	stored, err := s.grades.Exam(ctx, req.StudentID, req.CourseID, req.SectionID, req.Bimester)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		examMissing = true
	case err != nil:
		span.RecordError(err)
		return dto.BimesterPreviewResponse{}, fmt.Errorf("load exam: %w", err)
	default:
		exam = stored.Score
	}

	span.SetStatus(codes.Ok, "previewed")
	return dto.BimesterPreviewResponse{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		SectionID:      req.SectionID,
		Bimester:       req.Bimester,
		Months:         months,
		GradeCount:     len(grades),
		MonthlyAverage: dto.FormatDecimal(monthly),
		ExamScore:      dto.FormatDecimal(exam),
		ExamMissing:    examMissing,
		FinalAverage:   dto.FormatDecimal(grading.Blend5050(monthly, exam)),
		PeriodClosed:   period.IsClosed(),
	}, nil
}

func (s *bimesterService) List(ctx context.Context, req dto.BimesterListRequest) ([]dto.BimesterResult, error) {
	rows, err := s.consolidation.ListBimesters(ctx, repository.BimesterFilter{
		StudentID:  req.StudentID,
		CourseID:   req.CourseID,
		BimesterID: req.BimesterID,
	})
	if err != nil {
		return nil, err
	}
	results := make([]dto.BimesterResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, dto.NewBimesterResult(row))
	}
	return results, nil
}

func rankValue(rank *int) interface{} {
	if rank == nil {
		return nil
	}
	return *rank
}

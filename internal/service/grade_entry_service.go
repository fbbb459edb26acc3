package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/grading"
	"github.com/noah-isme/libreta-api/internal/models"
	"github.com/noah-isme/libreta-api/internal/repository"
)

// GradeEntryService records raw grades behind the closure guard.
type GradeEntryService interface {
	RecordMonthly(ctx context.Context, req dto.MonthlyGradeRequest, actor ActivityActor) (dto.GradeResponse, error)
	RecordExam(ctx context.Context, req dto.ExamGradeRequest, actor ActivityActor) (dto.GradeResponse, error)
}

type gradeEntryService struct {
	grades    repository.GradeRepository
	periods   repository.PeriodRepository
	closures  ClosureService
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewGradeEntryService constructs the guarded grade entry service.
func NewGradeEntryService(grades repository.GradeRepository, periods repository.PeriodRepository, closures ClosureService, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) GradeEntryService {
	return &gradeEntryService{
		grades:    grades,
		periods:   periods,
		closures:  closures,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "grade_entry_service").Logger(),
	}
}

// RecordMonthly refuses writes while the course/section/month scope is CLOSED.
func (s *gradeEntryService) RecordMonthly(ctx context.Context, req dto.MonthlyGradeRequest, actor ActivityActor) (dto.GradeResponse, error) {
	req.Rubric = strings.TrimSpace(req.Rubric)
	if err := s.validator.Struct(req); err != nil {
		return dto.GradeResponse{}, newValidationError(err)
	}
	if err := grading.Validate(*req.Score); err != nil {
		return dto.GradeResponse{}, fieldError("score", err)
	}

	grade := models.MonthlyGrade{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		SectionID: req.SectionID,
		Month:     req.Month,
		Rubric:    req.Rubric,
		Score:     grading.Quantize(*req.Score),
	}

	key := repository.ClosureKey{CourseID: req.CourseID, SectionID: req.SectionID, PeriodUnit: req.Month}
	err := s.closures.Guard(ctx, s.closures.ScopeLookup(key), func(ctx context.Context) error {
		return s.grades.UpsertMonthly(ctx, &grade)
	})
	if err != nil {
		return dto.GradeResponse{}, s.wrap("monthly grade", err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "grade.monthly_recorded",
		EntityType: "monthly_grade",
		EntityKey:  fmt.Sprintf("%d:%d:%d:%d", grade.StudentID, grade.CourseID, grade.SectionID, grade.Month),
		Metadata:   map[string]interface{}{"rubric": grade.Rubric, "score": grade.Score.StringFixed(grading.Scale)},
	})
	return dto.NewMonthlyGradeResponse(grade), nil
}

// RecordExam refuses writes once the bimester period has been closed.
func (s *gradeEntryService) RecordExam(ctx context.Context, req dto.ExamGradeRequest, actor ActivityActor) (dto.GradeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GradeResponse{}, newValidationError(err)
	}
	if err := grading.Validate(*req.Score); err != nil {
		return dto.GradeResponse{}, fieldError("score", err)
	}

	exam := models.BimesterExam{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		SectionID: req.SectionID,
		Bimester:  req.Bimester,
		Score:     grading.Quantize(*req.Score),
	}

	lookup := func(ctx context.Context) (Closable, error) {
		period, err := s.periods.GetByOrdinal(ctx, models.PeriodKindBimester, req.Bimester)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("bimester", err)
			}
			return nil, err
		}
		return period, nil
	}
	err := s.closures.Guard(ctx, lookup, func(ctx context.Context) error {
		return s.grades.UpsertExam(ctx, &exam)
	})
	if err != nil {
		return dto.GradeResponse{}, s.wrap("exam grade", err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "grade.exam_recorded",
		EntityType: "bimester_exam",
		EntityKey:  fmt.Sprintf("%d:%d:%d:%d", exam.StudentID, exam.CourseID, exam.SectionID, exam.Bimester),
		Metadata:   map[string]interface{}{"score": exam.Score.StringFixed(grading.Scale)},
	})
	return dto.NewExamGradeResponse(exam), nil
}

func (s *gradeEntryService) wrap(what string, err error) error {
	var conflict *ConflictError
	var missing *NotFoundError
	if errors.As(err, &conflict) || errors.As(err, &missing) {
		return err
	}
	s.logger.Error().Err(err).Str("target", what).Msg("failed to record grade")
	return fmt.Errorf("record %s: %w", what, err)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
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

// SlotStrategy decides which annual column each closed bimester lands in.
type SlotStrategy string

const (
	// SlotByDiscoveryOrder fills slots 1..4 in period start order, so a gap
	// (bimester 2 never closed) shifts bimester 3 into slot 2.
	SlotByDiscoveryOrder SlotStrategy = "discovery"
	// SlotByIdentity places each bimester in the slot of its ordinal.
	SlotByIdentity SlotStrategy = "identity"
)

// ParseSlotStrategy maps a config value to a strategy, defaulting to
// discovery order.
func ParseSlotStrategy(raw string) SlotStrategy {
	if SlotStrategy(strings.ToLower(strings.TrimSpace(raw))) == SlotByIdentity {
		return SlotByIdentity
	}
	return SlotByDiscoveryOrder
}

// Assign distributes rows, already ordered by period start, into four slots.
func (s SlotStrategy) Assign(rows []models.ConsolidatedBimester) [4]decimal.NullDecimal {
	var slots [4]decimal.NullDecimal
	if s == SlotByIdentity {
		for _, row := range rows {
			idx := row.Bimester.Ordinal - 1
			if idx < 0 || idx >= len(slots) || slots[idx].Valid {
				continue
			}
			slots[idx] = row.FinalAverage
		}
		return slots
	}

	for i, row := range rows {
		if i >= len(slots) {
			break
		}
		slots[i] = row.FinalAverage
	}
	return slots
}

// AnnualService rolls closed bimesters up into the yearly UGEL grade.
type AnnualService interface {
	Consolidate(ctx context.Context, req dto.AnnualConsolidationRequest, actor ActivityActor) (dto.AnnualResult, error)
	CourseReport(ctx context.Context, courseID uint, actor ActivityActor) (dto.AnnualReportResponse, error)
}

type annualService struct {
	students      repository.StudentRepository
	courses       repository.CourseRepository
	consolidation repository.ConsolidationRepository
	validator     *validator.Validate
	activity      ActivityRecorder
	slotting      SlotStrategy
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewAnnualService constructs the annual roll-up.
func NewAnnualService(
	students repository.StudentRepository,
	courses repository.CourseRepository,
	consolidation repository.ConsolidationRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	slotting SlotStrategy,
	logger zerolog.Logger,
) AnnualService {
	if slotting == "" {
		slotting = SlotByDiscoveryOrder
	}
	return &annualService{
		students:      students,
		courses:       courses,
		consolidation: consolidation,
		validator:     validate,
		activity:      activity,
		slotting:      slotting,
		logger:        logger.With().Str("component", "annual_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/libreta-api/internal/service/annual"),
		now:           time.Now,
	}
}

func (s *annualService) Consolidate(ctx context.Context, req dto.AnnualConsolidationRequest, actor ActivityActor) (dto.AnnualResult, error) {
	ctx, span := s.tracer.Start(ctx, "consolidation.annual")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.AnnualResult{}, newValidationError(err)
	}
	span.SetAttributes(
		attribute.Int("consolidation.student_id", int(req.StudentID)),
		attribute.Int("consolidation.course_id", int(req.CourseID)),
		attribute.String("consolidation.slotting", string(s.slotting)),
	)

	student, err := s.students.GetByID(ctx, req.StudentID)
	if err != nil {
		return dto.AnnualResult{}, s.lookupError("student", err)
	}
	if _, err := s.courses.GetByID(ctx, req.CourseID); err != nil {
		return dto.AnnualResult{}, s.lookupError("course", err)
	}

	row, err := s.rollUp(ctx, req.StudentID, req.CourseID)
	if err != nil {
		observability.Consolidations().WithLabelValues("annual", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "roll-up failed")
		return dto.AnnualResult{}, err
	}

	observability.Consolidations().WithLabelValues("annual", "ok").Inc()
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "consolidation.annual",
		EntityType: "consolidated_annual",
		EntityKey:  fmt.Sprintf("%d:%d", row.StudentID, row.CourseID),
		Metadata: map[string]interface{}{
			"final_average": row.FinalAverage.StringFixed(grading.Scale),
			"letter":        row.Letter,
			"rank":          rankValue(row.Rank),
		},
	})

	result := dto.NewAnnualResult(row)
	result.StudentName = student.Name
	span.SetStatus(codes.Ok, "consolidated")
	return result, nil
}

// CourseReport recomputes every annual row of the course from the current
// bimester data and returns them ordered by rank.
func (s *annualService) CourseReport(ctx context.Context, courseID uint, actor ActivityActor) (dto.AnnualReportResponse, error) {
	ctx, span := s.tracer.Start(ctx, "consolidation.annual_report")
	defer span.End()
	span.SetAttributes(attribute.Int("consolidation.course_id", int(courseID)))

	if courseID == 0 {
		return dto.AnnualReportResponse{}, &ValidationError{
			Code:    CodeValidation,
			Message: "invalid fields: course_id",
			Fields:  []FieldError{{Field: "course_id", Message: "is required"}},
		}
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return dto.AnnualReportResponse{}, s.lookupError("course", err)
	}

	studentIDs, err := s.consolidation.AnnualStudentIDs(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		return dto.AnnualReportResponse{}, fmt.Errorf("list annual rows: %w", err)
	}

	items := make([]dto.AnnualResult, 0, len(studentIDs))
	for _, studentID := range studentIDs {
		row, err := s.rollUp(ctx, studentID, courseID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "roll-up failed")
			return dto.AnnualReportResponse{}, err
		}
		items = append(items, dto.NewAnnualResult(row))
	}

	names, err := s.students.NamesByID(ctx, studentIDs)
	if err != nil {
		span.RecordError(err)
		return dto.AnnualReportResponse{}, fmt.Errorf("load student names: %w", err)
	}
	for i := range items {
		items[i].StudentName = names[items[i].StudentID]
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := rankOrMax(items[i].Rank), rankOrMax(items[j].Rank)
		if ri != rj {
			return ri < rj
		}
		return items[i].StudentID < items[j].StudentID
	})

	s.logger.Info().Uint("course_id", courseID).Int("rows", len(items)).Uint("actor_id", actor.ID).Msg("annual report generated")
	span.SetStatus(codes.Ok, "reported")
	return dto.AnnualReportResponse{CourseID: courseID, Items: items}, nil
}

func (s *annualService) rollUp(ctx context.Context, studentID, courseID uint) (models.ConsolidatedAnnual, error) {
	bimesters, err := s.consolidation.ClosedBimesters(ctx, studentID, courseID)
	if err != nil {
		return models.ConsolidatedAnnual{}, fmt.Errorf("load closed bimesters: %w", err)
	}

	slots := s.slotting.Assign(bimesters)
	count := 0
	for _, slot := range slots {
		if slot.Valid {
			count++
		}
	}

	final := grading.AverageNullable(slots[:])
	letter := grading.BandRaw(final)

	row := models.ConsolidatedAnnual{
		StudentID:    studentID,
		CourseID:     courseID,
		FinalAverage: final,
		Letter:       string(letter),
		Comment:      grading.Comment(letter, final, count),
		ComputedAt:   s.now().UTC(),
	}
	row.SetSlots(slots)

	if err := s.consolidation.SaveAnnual(ctx, &row); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ConsolidatedAnnual{}, &ConflictError{Code: CodeConflict, Message: ErrAlreadyConsolidated.Error(), Err: ErrAlreadyConsolidated}
		}
		return models.ConsolidatedAnnual{}, fmt.Errorf("save annual consolidation: %w", err)
	}

	s.logger.Debug().
		Uint("student_id", studentID).
		Uint("course_id", courseID).
		Int("bimesters", count).
		Str("final_average", final.StringFixed(grading.Scale)).
		Str("letter", string(letter)).
		Msg("annual roll-up computed")
	return row, nil
}

func (s *annualService) lookupError(resource string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(resource, err)
	}
	return fmt.Errorf("load %s: %w", resource, err)
}

func rankOrMax(rank *int) int {
	if rank == nil {
		return int(^uint(0) >> 1)
	}
	return *rank
}

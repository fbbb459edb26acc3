package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/models"
	"github.com/noah-isme/libreta-api/internal/observability"
	"github.com/noah-isme/libreta-api/internal/repository"
)

// Closable is anything that can be locked against edits.
type Closable interface {
	IsClosed() bool
}

// ClosureService owns the edit locks for periods and course scopes.
type ClosureService interface {
	SetState(ctx context.Context, req dto.ClosureStateRequest, actor ActivityActor) (dto.ClosureStateResponse, error)
	State(ctx context.Context, key repository.ClosureKey) (dto.ClosureStateResponse, error)
	List(ctx context.Context, courseID, sectionID uint) ([]dto.ClosureStateResponse, error)
	AssertNotClosed(entity Closable) error
	// Guard resolves the target, refuses when it is closed and only then
	// runs mutate.
	Guard(ctx context.Context, lookup func(context.Context) (Closable, error), mutate func(context.Context) error) error
	ScopeLookup(key repository.ClosureKey) func(context.Context) (Closable, error)
	PeriodLookup(periodID uint) func(context.Context) (Closable, error)
	ClosePeriod(ctx context.Context, periodID uint, actor ActivityActor) (dto.PeriodResponse, error)
}

type closureService struct {
	closures  repository.ClosureRepository
	periods   repository.PeriodRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewClosureService constructs the closure guard.
func NewClosureService(closures repository.ClosureRepository, periods repository.PeriodRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) ClosureService {
	return &closureService{
		closures:  closures,
		periods:   periods,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "closure_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/libreta-api/internal/service/closure"),
		now:       time.Now,
	}
}

func (s *closureService) SetState(ctx context.Context, req dto.ClosureStateRequest, actor ActivityActor) (dto.ClosureStateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "closure.set_state")
	defer span.End()

	req.State = strings.ToUpper(strings.TrimSpace(req.State))
	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.ClosureStateResponse{}, newValidationError(err)
	}

	span.SetAttributes(
		attribute.Int("closure.course_id", int(req.CourseID)),
		attribute.Int("closure.section_id", int(req.SectionID)),
		attribute.Int("closure.period_unit", req.PeriodUnit),
		attribute.String("closure.state", req.State),
	)

	now := s.now().UTC()
	changedBy := actor.ID
	state := models.ClosureState{
		CourseID:   req.CourseID,
		SectionID:  req.SectionID,
		PeriodUnit: req.PeriodUnit,
		State:      models.ClosureStatus(req.State),
		ChangedBy:  &changedBy,
		ChangedAt:  &now,
	}

	previous, err := s.closures.Set(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.ClosureStateResponse{}, fmt.Errorf("set closure state: %w", err)
	}

	observability.ClosureChanges().WithLabelValues(string(state.State)).Inc()
	s.logger.Info().
		Uint("course_id", state.CourseID).
		Uint("section_id", state.SectionID).
		Int("period_unit", state.PeriodUnit).
		Str("from", string(previous)).
		Str("to", string(state.State)).
		Msg("closure state changed")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "closure." + strings.ToLower(string(state.State)),
		EntityType: "closure",
		EntityKey:  closureKeyString(req.CourseID, req.SectionID, req.PeriodUnit),
		Metadata: map[string]interface{}{
			"previous_state": string(previous),
			"state":          string(state.State),
		},
	})

	response := dto.NewClosureStateResponse(state)
	response.Previous = string(previous)
	span.SetStatus(codes.Ok, "changed")
	return response, nil
}

func (s *closureService) State(ctx context.Context, key repository.ClosureKey) (dto.ClosureStateResponse, error) {
	state, err := s.lookupScope(ctx, key)
	if err != nil {
		return dto.ClosureStateResponse{}, err
	}
	return dto.NewClosureStateResponse(state), nil
}

func (s *closureService) List(ctx context.Context, courseID, sectionID uint) ([]dto.ClosureStateResponse, error) {
	states, err := s.closures.List(ctx, courseID, sectionID)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ClosureStateResponse, 0, len(states))
	for _, state := range states {
		responses = append(responses, dto.NewClosureStateResponse(state))
	}
	return responses, nil
}

func (s *closureService) AssertNotClosed(entity Closable) error {
	if entity == nil || !entity.IsClosed() {
		return nil
	}
	switch v := entity.(type) {
	case models.Period:
		return &ConflictError{Code: CodePeriodClosed, Message: fmt.Sprintf("period %q is closed", v.Name), Err: ErrEntityClosed}
	case models.ClosureState:
		return &ConflictError{
			Code:    CodeScopeClosed,
			Message: fmt.Sprintf("grades for month %d are closed", v.PeriodUnit),
			Err:     ErrEntityClosed,
		}
	default:
		return &ConflictError{Code: CodeConflict, Err: ErrEntityClosed}
	}
}

func (s *closureService) Guard(ctx context.Context, lookup func(context.Context) (Closable, error), mutate func(context.Context) error) error {
	entity, err := lookup(ctx)
	if err != nil {
		return err
	}
	if err := s.AssertNotClosed(entity); err != nil {
		return err
	}
	return mutate(ctx)
}

// ScopeLookup resolves a course scope; a scope nobody has touched is OPEN.
func (s *closureService) ScopeLookup(key repository.ClosureKey) func(context.Context) (Closable, error) {
	return func(ctx context.Context) (Closable, error) {
		state, err := s.lookupScope(ctx, key)
		if err != nil {
			return nil, err
		}
		return state, nil
	}
}

// PeriodLookup resolves a period; an unknown period is a NotFoundError.
func (s *closureService) PeriodLookup(periodID uint) func(context.Context) (Closable, error) {
	return func(ctx context.Context) (Closable, error) {
		period, err := s.periods.GetByID(ctx, periodID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("period", err)
			}
			return nil, err
		}
		return period, nil
	}
}

func (s *closureService) ClosePeriod(ctx context.Context, periodID uint, actor ActivityActor) (dto.PeriodResponse, error) {
	ctx, span := s.tracer.Start(ctx, "closure.close_period")
	defer span.End()
	span.SetAttributes(attribute.Int("period.id", int(periodID)))

	period, err := s.periods.Close(ctx, periodID, actor.ID, s.now().UTC())
	switch {
	case errors.Is(err, repository.ErrAlreadyClosed):
		span.SetStatus(codes.Error, "already closed")
		return dto.PeriodResponse{}, &ConflictError{
			Code:    CodePeriodClosed,
			Message: fmt.Sprintf("period %d is already closed", periodID),
			Err:     ErrPeriodAlreadyClosed,
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		span.SetStatus(codes.Error, "not found")
		return dto.PeriodResponse{}, notFound("period", err)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "close failed")
		return dto.PeriodResponse{}, fmt.Errorf("close period: %w", err)
	}

	observability.ClosureChanges().WithLabelValues("PERIOD_CLOSED").Inc()
	s.logger.Info().Uint("period_id", period.ID).Uint("actor_id", actor.ID).Msg("period closed")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "period.closed",
		EntityType: "period",
		EntityKey:  fmt.Sprintf("%d", period.ID),
		Metadata: map[string]interface{}{
			"name":    period.Name,
			"ordinal": period.Ordinal,
		},
	})

	span.SetStatus(codes.Ok, "closed")
	return dto.NewPeriodResponse(period), nil
}

func (s *closureService) lookupScope(ctx context.Context, key repository.ClosureKey) (models.ClosureState, error) {
	state, err := s.closures.Get(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ClosureState{
			CourseID:   key.CourseID,
			SectionID:  key.SectionID,
			PeriodUnit: key.PeriodUnit,
			State:      models.ClosureOpen,
		}, nil
	}
	if err != nil {
		return models.ClosureState{}, err
	}
	return state, nil
}

func closureKeyString(courseID, sectionID uint, unit int) string {
	return fmt.Sprintf("%d:%d:%d", courseID, sectionID, unit)
}

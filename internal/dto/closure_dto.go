package dto

import (
	"time"

	"github.com/noah-isme/libreta-api/internal/models"
)

// ClosureStateRequest moves a course/section/month scope to a new state.
type ClosureStateRequest struct {
	CourseID   uint   `json:"course_id" validate:"required"`
	SectionID  uint   `json:"section_id" validate:"required"`
	PeriodUnit int    `json:"period_unit" validate:"required,min=1,max=12"`
	State      string `json:"state" validate:"required,oneof=OPEN UNDER_REVIEW CLOSED"`
}

// ClosureStateResponse serializes a closure record.
type ClosureStateResponse struct {
	CourseID   uint       `json:"course_id"`
	SectionID  uint       `json:"section_id"`
	PeriodUnit int        `json:"period_unit"`
	State      string     `json:"state"`
	Previous   string     `json:"previous_state,omitempty"`
	ChangedBy  *uint      `json:"changed_by"`
	ChangedAt  *time.Time `json:"changed_at"`
}

// NewClosureStateResponse converts a closure model.
func NewClosureStateResponse(state models.ClosureState) ClosureStateResponse {
	return ClosureStateResponse{
		CourseID:   state.CourseID,
		SectionID:  state.SectionID,
		PeriodUnit: state.PeriodUnit,
		State:      string(state.State),
		ChangedBy:  state.ChangedBy,
		ChangedAt:  state.ChangedAt,
	}
}

// PeriodResponse serializes a grading period.
type PeriodResponse struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Ordinal   int        `json:"ordinal"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	Closed    bool       `json:"closed"`
	ClosedAt  *time.Time `json:"closed_at"`
	ClosedBy  *uint      `json:"closed_by"`
}

// NewPeriodResponse converts a period model.
func NewPeriodResponse(period models.Period) PeriodResponse {
	return PeriodResponse{
		ID:        period.ID,
		Name:      period.Name,
		Kind:      period.Kind,
		Ordinal:   period.Ordinal,
		StartDate: period.StartDate,
		EndDate:   period.EndDate,
		Closed:    period.Closed,
		ClosedAt:  period.ClosedAt,
		ClosedBy:  period.ClosedBy,
	}
}

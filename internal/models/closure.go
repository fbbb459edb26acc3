package models

import "time"

// ClosureStatus is the edit lock for a course/section/period-unit scope.
type ClosureStatus string

const (
	ClosureOpen        ClosureStatus = "OPEN"
	ClosureUnderReview ClosureStatus = "UNDER_REVIEW"
	ClosureClosed      ClosureStatus = "CLOSED"
)

// Valid reports whether s is one of the known states.
func (s ClosureStatus) Valid() bool {
	switch s {
	case ClosureOpen, ClosureUnderReview, ClosureClosed:
		return true
	}
	return false
}

// ClosureState persists the lock for one scope. A missing row means OPEN.
type ClosureState struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	CourseID   uint          `gorm:"not null;uniqueIndex:idx_closure_scope" json:"course_id"`
	SectionID  uint          `gorm:"not null;uniqueIndex:idx_closure_scope" json:"section_id"`
	PeriodUnit int           `gorm:"not null;uniqueIndex:idx_closure_scope" json:"period_unit"`
	State      ClosureStatus `gorm:"size:16;not null;default:OPEN" json:"state"`
	ChangedBy  *uint         `json:"changed_by"`
	ChangedAt  *time.Time    `json:"changed_at"`
}

// IsClosed reports whether the scope is locked.
func (c ClosureState) IsClosed() bool {
	return c.State == ClosureClosed
}

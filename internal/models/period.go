package models

import "time"

const (
	// PeriodKindBimester identifies a two-month grading window.
	PeriodKindBimester = "bimester"
	// PeriodKindMonth identifies a single month.
	PeriodKindMonth = "month"
)

// Period is a grading window. Closed flips once, through the closure service.
type Period struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"size:50;not null" json:"name"`
	Kind      string     `gorm:"size:16;not null;default:bimester" json:"kind"`
	Ordinal   int        `gorm:"not null" json:"ordinal"`
	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   time.Time  `gorm:"not null" json:"end_date"`
	Closed    bool       `gorm:"not null;default:false" json:"closed"`
	ClosedAt  *time.Time `json:"closed_at"`
	ClosedBy  *uint      `json:"closed_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsClosed reports whether edits under this period are locked.
func (p Period) IsClosed() bool {
	return p.Closed
}

// Months lists the calendar months covered by the period, in order.
func (p Period) Months() []int {
	if p.EndDate.Before(p.StartDate) {
		return nil
	}
	months := []int{}
	cursor := time.Date(p.StartDate.Year(), p.StartDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(p.EndDate.Year(), p.EndDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(end) {
		months = append(months, int(cursor.Month()))
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

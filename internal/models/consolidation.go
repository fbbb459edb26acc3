package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsolidatedBimester is the authoritative 50/50 result for one bimester.
type ConsolidatedBimester struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	StudentID      uint                `gorm:"not null;uniqueIndex:idx_consolidated_bimester" json:"student_id"`
	CourseID       uint                `gorm:"not null;uniqueIndex:idx_consolidated_bimester;index:idx_consolidated_bimester_rank" json:"course_id"`
	BimesterID     uint                `gorm:"not null;uniqueIndex:idx_consolidated_bimester;index:idx_consolidated_bimester_rank" json:"bimester_id"`
	MonthlyAverage decimal.NullDecimal `gorm:"type:numeric(4,2)" json:"monthly_average"`
	ExamScore      decimal.NullDecimal `gorm:"type:numeric(4,2)" json:"exam_score"`
	FinalAverage   decimal.NullDecimal `gorm:"type:numeric(4,2)" json:"final_average"`
	Rank           *int                `json:"rank"`
	Closed         bool                `gorm:"not null;default:false" json:"closed"`
	ComputedAt     time.Time           `json:"computed_at"`
	Bimester       Period              `gorm:"foreignKey:BimesterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// ConsolidatedAnnual is the yearly roll-up reported to UGEL.
type ConsolidatedAnnual struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	StudentID    uint                `gorm:"not null;uniqueIndex:idx_consolidated_annual" json:"student_id"`
	CourseID     uint                `gorm:"not null;uniqueIndex:idx_consolidated_annual;index" json:"course_id"`
	Bimester1    decimal.NullDecimal `gorm:"column:bimester_1;type:numeric(4,2)" json:"bimester_1"`
	Bimester2    decimal.NullDecimal `gorm:"column:bimester_2;type:numeric(4,2)" json:"bimester_2"`
	Bimester3    decimal.NullDecimal `gorm:"column:bimester_3;type:numeric(4,2)" json:"bimester_3"`
	Bimester4    decimal.NullDecimal `gorm:"column:bimester_4;type:numeric(4,2)" json:"bimester_4"`
	FinalAverage decimal.Decimal     `gorm:"type:numeric(4,2);not null" json:"final_average"`
	Letter       string              `gorm:"size:2" json:"letter"`
	Rank         *int                `json:"rank"`
	Comment      string              `gorm:"type:text" json:"comment"`
	ComputedAt   time.Time           `json:"computed_at"`
}

// Slots returns the four bimester columns in order.
func (a ConsolidatedAnnual) Slots() [4]decimal.NullDecimal {
	return [4]decimal.NullDecimal{a.Bimester1, a.Bimester2, a.Bimester3, a.Bimester4}
}

// SetSlots assigns the four bimester columns.
func (a *ConsolidatedAnnual) SetSlots(slots [4]decimal.NullDecimal) {
	a.Bimester1, a.Bimester2, a.Bimester3, a.Bimester4 = slots[0], slots[1], slots[2], slots[3]
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyGrade is one rubric score for a student in a given month.
type MonthlyGrade struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	StudentID uint            `gorm:"not null;uniqueIndex:idx_monthly_grade" json:"student_id"`
	CourseID  uint            `gorm:"not null;uniqueIndex:idx_monthly_grade" json:"course_id"`
	SectionID uint            `gorm:"not null;uniqueIndex:idx_monthly_grade" json:"section_id"`
	Month     int             `gorm:"not null;uniqueIndex:idx_monthly_grade" json:"month"`
	Rubric    string          `gorm:"size:100;not null;uniqueIndex:idx_monthly_grade" json:"rubric"`
	Score     decimal.Decimal `gorm:"type:numeric(4,2);not null" json:"score"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BimesterExam is the exam score for one bimester.
type BimesterExam struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	StudentID uint            `gorm:"not null;uniqueIndex:idx_bimester_exam" json:"student_id"`
	CourseID  uint            `gorm:"not null;uniqueIndex:idx_bimester_exam" json:"course_id"`
	SectionID uint            `gorm:"not null;uniqueIndex:idx_bimester_exam" json:"section_id"`
	Bimester  int             `gorm:"not null;uniqueIndex:idx_bimester_exam" json:"bimester"`
	Score     decimal.Decimal `gorm:"type:numeric(4,2);not null" json:"score"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/libreta-api/internal/grading"
	"github.com/noah-isme/libreta-api/internal/models"
)

// BimesterConsolidationRequest carries the inputs of the 50/50 rule.
type BimesterConsolidationRequest struct {
	StudentID      uint             `json:"student_id" validate:"required"`
	CourseID       uint             `json:"course_id" validate:"required"`
	BimesterID     uint             `json:"bimester_id" validate:"required"`
	MonthlyAverage *decimal.Decimal `json:"monthly_average" validate:"required"`
	ExamScore      *decimal.Decimal `json:"exam_score" validate:"required"`
}

// PreconditionResult reports whether a bimester may be consolidated.
type PreconditionResult struct {
	Met     bool     `json:"preconditions_met"`
	Reasons []string `json:"reasons"`
}

// BimesterResult is the outcome of a bimester consolidation. Failures that
// callers poll for (missing data, open period) are reported here rather than
// as errors.
type BimesterResult struct {
	StudentID        uint       `json:"student_id"`
	StudentName      string     `json:"student_name,omitempty"`
	StudentCode      string     `json:"student_code,omitempty"`
	CourseID         uint       `json:"course_id"`
	CourseName       string     `json:"course_name,omitempty"`
	BimesterID       uint       `json:"bimester_id"`
	BimesterName     string     `json:"bimester_name,omitempty"`
	MonthlyAverage   *string    `json:"monthly_average"`
	ExamScore        *string    `json:"exam_score"`
	FinalAverage     *string    `json:"final_average"`
	Rank             *int       `json:"rank"`
	Closed           bool       `json:"closed"`
	PreconditionsMet bool       `json:"preconditions_met"`
	NotFound         bool       `json:"not_found"`
	Code             string     `json:"code,omitempty"`
	Errors           []string   `json:"errors"`
	ComputedAt       *time.Time `json:"computed_at"`
}

// NewBimesterResult converts a persisted consolidation into a success result.
func NewBimesterResult(row models.ConsolidatedBimester) BimesterResult {
	computedAt := row.ComputedAt
	return BimesterResult{
		StudentID:        row.StudentID,
		CourseID:         row.CourseID,
		BimesterID:       row.BimesterID,
		BimesterName:     row.Bimester.Name,
		MonthlyAverage:   FormatNullDecimal(row.MonthlyAverage),
		ExamScore:        FormatNullDecimal(row.ExamScore),
		FinalAverage:     FormatNullDecimal(row.FinalAverage),
		Rank:             row.Rank,
		Closed:           row.Closed,
		PreconditionsMet: true,
		Errors:           []string{},
		ComputedAt:       &computedAt,
	}
}

// BimesterListRequest filters consolidated bimester rows.
type BimesterListRequest struct {
	StudentID  uint
	CourseID   uint
	BimesterID uint
}

// BimesterPreviewRequest identifies the raw grades of one bimester.
type BimesterPreviewRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
	CourseID  uint `json:"course_id" validate:"required"`
	SectionID uint `json:"section_id" validate:"required"`
	Bimester  int  `json:"bimester" validate:"required,min=1,max=4"`
}

// BimesterPreviewResponse shows the 50/50 blend without persisting it.
type BimesterPreviewResponse struct {
	StudentID      uint   `json:"student_id"`
	CourseID       uint   `json:"course_id"`
	SectionID      uint   `json:"section_id"`
	Bimester       int    `json:"bimester"`
	Months         []int  `json:"months"`
	GradeCount     int    `json:"grade_count"`
	MonthlyAverage string `json:"monthly_average"`
	ExamScore      string `json:"exam_score"`
	ExamMissing    bool   `json:"exam_missing"`
	FinalAverage   string `json:"final_average"`
	PeriodClosed   bool   `json:"period_closed"`
}

// AnnualConsolidationRequest identifies the roll-up target.
type AnnualConsolidationRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
	CourseID  uint `json:"course_id" validate:"required"`
}

// AnnualResult serializes a yearly roll-up.
type AnnualResult struct {
	StudentID         uint       `json:"student_id"`
	StudentName       string     `json:"student_name,omitempty"`
	CourseID          uint       `json:"course_id"`
	Bimesters         [4]*string `json:"bimesters"`
	BimesterCount     int        `json:"bimester_count"`
	FinalAverage      string     `json:"final_average"`
	Letter            string     `json:"letter"`
	LetterDescription string     `json:"letter_description"`
	Rank              *int       `json:"rank"`
	Comment           string     `json:"comment"`
	ComputedAt        time.Time  `json:"computed_at"`
}

// NewAnnualResult converts a persisted annual row.
func NewAnnualResult(row models.ConsolidatedAnnual) AnnualResult {
	result := AnnualResult{
		StudentID:         row.StudentID,
		CourseID:          row.CourseID,
		FinalAverage:      FormatDecimal(row.FinalAverage),
		Letter:            row.Letter,
		LetterDescription: grading.Letter(row.Letter).Description(),
		Rank:              row.Rank,
		Comment:           row.Comment,
		ComputedAt:        row.ComputedAt,
	}
	for i, slot := range row.Slots() {
		result.Bimesters[i] = FormatNullDecimal(slot)
		if slot.Valid {
			result.BimesterCount++
		}
	}
	return result
}

// AnnualReportResponse lists a course's annual rows ordered by rank.
type AnnualReportResponse struct {
	CourseID uint           `json:"course_id"`
	Items    []AnnualResult `json:"items"`
}

// FormatDecimal renders a grade with exactly two decimals.
func FormatDecimal(value decimal.Decimal) string {
	return grading.Quantize(value).StringFixed(grading.Scale)
}

// FormatNullDecimal renders a nullable grade, keeping null as null.
func FormatNullDecimal(value decimal.NullDecimal) *string {
	if !value.Valid {
		return nil
	}
	formatted := FormatDecimal(value.Decimal)
	return &formatted
}

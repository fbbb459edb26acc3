package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/libreta-api/internal/models"
)

// MonthlyGradeRequest records one rubric score for a month.
type MonthlyGradeRequest struct {
	StudentID uint             `json:"student_id" validate:"required"`
	CourseID  uint             `json:"course_id" validate:"required"`
	SectionID uint             `json:"section_id" validate:"required"`
	Month     int              `json:"month" validate:"required,min=1,max=12"`
	Rubric    string           `json:"rubric" validate:"required,max=100"`
	Score     *decimal.Decimal `json:"score" validate:"required"`
}

// ExamGradeRequest records a bimester exam score.
type ExamGradeRequest struct {
	StudentID uint             `json:"student_id" validate:"required"`
	CourseID  uint             `json:"course_id" validate:"required"`
	SectionID uint             `json:"section_id" validate:"required"`
	Bimester  int              `json:"bimester" validate:"required,min=1,max=4"`
	Score     *decimal.Decimal `json:"score" validate:"required"`
}

// GradeResponse echoes a stored grade.
type GradeResponse struct {
	StudentID uint      `json:"student_id"`
	CourseID  uint      `json:"course_id"`
	SectionID uint      `json:"section_id"`
	Month     int       `json:"month,omitempty"`
	Bimester  int       `json:"bimester,omitempty"`
	Rubric    string    `json:"rubric,omitempty"`
	Score     string    `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMonthlyGradeResponse converts a monthly grade model.
func NewMonthlyGradeResponse(grade models.MonthlyGrade) GradeResponse {
	return GradeResponse{
		StudentID: grade.StudentID,
		CourseID:  grade.CourseID,
		SectionID: grade.SectionID,
		Month:     grade.Month,
		Rubric:    grade.Rubric,
		Score:     FormatDecimal(grade.Score),
		UpdatedAt: grade.UpdatedAt,
	}
}

// NewExamGradeResponse converts an exam model.
func NewExamGradeResponse(exam models.BimesterExam) GradeResponse {
	return GradeResponse{
		StudentID: exam.StudentID,
		CourseID:  exam.CourseID,
		SectionID: exam.SectionID,
		Bimester:  exam.Bimester,
		Score:     FormatDecimal(exam.Score),
		UpdatedAt: exam.UpdatedAt,
	}
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/libreta-api/internal/models"
)

// GradeRepository stores raw monthly rubric scores and bimester exams.
type GradeRepository interface {
	UpsertMonthly(ctx context.Context, grade *models.MonthlyGrade) error
	UpsertExam(ctx context.Context, exam *models.BimesterExam) error
	MonthlyScores(ctx context.Context, studentID, courseID, sectionID uint, months []int) ([]models.MonthlyGrade, error)
	Exam(ctx context.Context, studentID, courseID, sectionID uint, bimester int) (models.BimesterExam, error)
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

func (r *gradeRepository) UpsertMonthly(ctx context.Context, grade *models.MonthlyGrade) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "student_id"}, {Name: "course_id"}, {Name: "section_id"}, {Name: "month"}, {Name: "rubric"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(grade).Error
}

func (r *gradeRepository) UpsertExam(ctx context.Context, exam *models.BimesterExam) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "student_id"}, {Name: "course_id"}, {Name: "section_id"}, {Name: "bimester"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(exam).Error
}

func (r *gradeRepository) MonthlyScores(ctx context.Context, studentID, courseID, sectionID uint, months []int) ([]models.MonthlyGrade, error) {
	if len(months) == 0 {
		return nil, nil
	}

	var grades []models.MonthlyGrade
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND section_id = ?", studentID, courseID, sectionID).
		Where("month IN ?", months).
		Order("month, rubric").
		Find(&grades).Error
	if err != nil {
		return nil, err
	}
	return grades, nil
}

func (r *gradeRepository) Exam(ctx context.Context, studentID, courseID, sectionID uint, bimester int) (models.BimesterExam, error) {
	var exam models.BimesterExam
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND section_id = ? AND bimester = ?", studentID, courseID, sectionID, bimester).
		First(&exam).Error
	if err != nil {
		return models.BimesterExam{}, err
	}
	return exam, nil
}

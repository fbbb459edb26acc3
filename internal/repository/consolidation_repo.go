package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/libreta-api/internal/models"
)

// BimesterFilter narrows consolidated bimester queries.
type BimesterFilter struct {
	StudentID  uint
	CourseID   uint
	BimesterID uint
}

// ConsolidationRepository persists bimester and annual consolidations.
type ConsolidationRepository interface {
	// SaveBimester upserts the row keyed by (student, course, bimester) and
	// stamps its rank among closed rows of the same course and bimester, all
	// in one transaction.
	SaveBimester(ctx context.Context, row *models.ConsolidatedBimester) error
	ListBimesters(ctx context.Context, filter BimesterFilter) ([]models.ConsolidatedBimester, error)
	// ClosedBimesters returns the closed rows of a student in a course ordered
	// by the start date of their period.
	ClosedBimesters(ctx context.Context, studentID, courseID uint) ([]models.ConsolidatedBimester, error)

	// SaveAnnual upserts the row keyed by (student, course) and stamps its
	// rank among the course's annual rows.
	SaveAnnual(ctx context.Context, row *models.ConsolidatedAnnual) error
	ListAnnual(ctx context.Context, courseID uint) ([]models.ConsolidatedAnnual, error)
	AnnualStudentIDs(ctx context.Context, courseID uint) ([]uint, error)
}

type consolidationRepository struct {
	db *gorm.DB
}

// NewConsolidationRepository constructs the consolidation repository.
func NewConsolidationRepository(db *gorm.DB) ConsolidationRepository {
	return &consolidationRepository{db: db}
}

func (r *consolidationRepository) SaveBimester(ctx context.Context, row *models.ConsolidatedBimester) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit("Bimester").Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "course_id"}, {Name: "bimester_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"monthly_average", "exam_score", "final_average", "closed", "computed_at",
			}),
		}).Create(row).Error
		if err != nil {
			return err
		}

		var stored models.ConsolidatedBimester
		if err := tx.Where("student_id = ? AND course_id = ? AND bimester_id = ?", row.StudentID, row.CourseID, row.BimesterID).
			First(&stored).Error; err != nil {
			return err
		}

		var higher int64
		if err := tx.Model(&models.ConsolidatedBimester{}).
			Where("course_id = ? AND bimester_id = ? AND closed = ?", stored.CourseID, stored.BimesterID, true).
			Where("student_id <> ?", stored.StudentID).
			Where("final_average > ?", stored.FinalAverage).
			Count(&higher).Error; err != nil {
			return err
		}

		rank := int(higher) + 1
		if err := tx.Model(&models.ConsolidatedBimester{}).Where("id = ?", stored.ID).Update("rank", rank).Error; err != nil {
			return err
		}

		stored.Rank = &rank
		stored.Bimester = row.Bimester
		*row = stored
		return nil
	})
}

func (r *consolidationRepository) ListBimesters(ctx context.Context, filter BimesterFilter) ([]models.ConsolidatedBimester, error) {
	query := r.db.WithContext(ctx).Model(&models.ConsolidatedBimester{})
	if filter.StudentID > 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.CourseID > 0 {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.BimesterID > 0 {
		query = query.Where("bimester_id = ?", filter.BimesterID)
	}

	var rows []models.ConsolidatedBimester
	if err := query.Order("bimester_id, rank, student_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *consolidationRepository) ClosedBimesters(ctx context.Context, studentID, courseID uint) ([]models.ConsolidatedBimester, error) {
	var rows []models.ConsolidatedBimester
	err := r.db.WithContext(ctx).
		Select("consolidated_bimesters.*").
		Joins("JOIN periods ON periods.id = consolidated_bimesters.bimester_id").
		Where("consolidated_bimesters.student_id = ? AND consolidated_bimesters.course_id = ?", studentID, courseID).
		Where("consolidated_bimesters.closed = ?", true).
		Order("periods.start_date ASC, periods.id ASC").
		Preload("Bimester").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *consolidationRepository) SaveAnnual(ctx context.Context, row *models.ConsolidatedAnnual) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"bimester_1", "bimester_2", "bimester_3", "bimester_4",
				"final_average", "letter", "comment", "computed_at",
			}),
		}).Create(row).Error
		if err != nil {
			return err
		}

		var stored models.ConsolidatedAnnual
		if err := tx.Where("student_id = ? AND course_id = ?", row.StudentID, row.CourseID).First(&stored).Error; err != nil {
			return err
		}

		var higher int64
		if err := tx.Model(&models.ConsolidatedAnnual{}).
			Where("course_id = ? AND student_id <> ?", stored.CourseID, stored.StudentID).
			Where("final_average > ?", stored.FinalAverage).
			Count(&higher).Error; err != nil {
			return err
		}

		rank := int(higher) + 1
		if err := tx.Model(&models.ConsolidatedAnnual{}).Where("id = ?", stored.ID).Update("rank", rank).Error; err != nil {
			return err
		}

		stored.Rank = &rank
		*row = stored
		return nil
	})
}

func (r *consolidationRepository) ListAnnual(ctx context.Context, courseID uint) ([]models.ConsolidatedAnnual, error) {
	var rows []models.ConsolidatedAnnual
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("rank ASC, student_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *consolidationRepository) AnnualStudentIDs(ctx context.Context, courseID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.ConsolidatedAnnual{}).
		Where("course_id = ?", courseID).
		Order("student_id").
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

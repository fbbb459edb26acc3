package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/libreta-api/internal/models"
)

// ClosureKey identifies one closure scope.
type ClosureKey struct {
	CourseID   uint
	SectionID  uint
	PeriodUnit int
}

// ClosureRepository persists tri-state closure records.
type ClosureRepository interface {
	Get(ctx context.Context, key ClosureKey) (models.ClosureState, error)
	// Set stores the new state and returns the state that was replaced.
	// A scope without a record reports OPEN as its previous state.
	Set(ctx context.Context, state models.ClosureState) (models.ClosureStatus, error)
	List(ctx context.Context, courseID, sectionID uint) ([]models.ClosureState, error)
}

type closureRepository struct {
	db *gorm.DB
}

// NewClosureRepository constructs the closure repository.
func NewClosureRepository(db *gorm.DB) ClosureRepository {
	return &closureRepository{db: db}
}

func (r *closureRepository) Get(ctx context.Context, key ClosureKey) (models.ClosureState, error) {
	var state models.ClosureState
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND section_id = ? AND period_unit = ?", key.CourseID, key.SectionID, key.PeriodUnit).
		First(&state).Error
	if err != nil {
		return models.ClosureState{}, err
	}
	return state, nil
}

func (r *closureRepository) Set(ctx context.Context, state models.ClosureState) (models.ClosureStatus, error) {
	previous := models.ClosureOpen
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ClosureState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("course_id = ? AND section_id = ? AND period_unit = ?", state.CourseID, state.SectionID, state.PeriodUnit).
			First(&existing).Error
		switch {
		case err == nil:
			previous = existing.State
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "section_id"}, {Name: "period_unit"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "changed_by", "changed_at"}),
		}).Create(&state).Error
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (r *closureRepository) List(ctx context.Context, courseID, sectionID uint) ([]models.ClosureState, error) {
	query := r.db.WithContext(ctx).Model(&models.ClosureState{})
	if courseID > 0 {
		query = query.Where("course_id = ?", courseID)
	}
	if sectionID > 0 {
		query = query.Where("section_id = ?", sectionID)
	}

	var states []models.ClosureState
	if err := query.Order("course_id, section_id, period_unit").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/libreta-api/internal/models"
)

// ErrAlreadyClosed is returned when a one-shot close hits a closed period.
var ErrAlreadyClosed = errors.New("period already closed")

// PeriodRepository persists grading windows.
type PeriodRepository interface {
	GetByID(ctx context.Context, id uint) (models.Period, error)
	GetByOrdinal(ctx context.Context, kind string, ordinal int) (models.Period, error)
	Close(ctx context.Context, id uint, actorID uint, at time.Time) (models.Period, error)
}

type periodRepository struct {
	db *gorm.DB
}

// NewPeriodRepository constructs a period repository.
func NewPeriodRepository(db *gorm.DB) PeriodRepository {
	return &periodRepository{db: db}
}

func (r *periodRepository) GetByID(ctx context.Context, id uint) (models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).First(&period, id).Error; err != nil {
		return models.Period{}, err
	}
	return period, nil
}

func (r *periodRepository) GetByOrdinal(ctx context.Context, kind string, ordinal int) (models.Period, error) {
	var period models.Period
	err := r.db.WithContext(ctx).
		Where("kind = ? AND ordinal = ?", kind, ordinal).
		Order("start_date DESC").
		First(&period).Error
	if err != nil {
		return models.Period{}, err
	}
	return period, nil
}

// Close flips the period to closed exactly once. The row is locked for the
// duration of the check so two concurrent closes cannot both succeed, and a
// repeated close leaves the first closed_at/closed_by untouched.
func (r *periodRepository) Close(ctx context.Context, id uint, actorID uint, at time.Time) (models.Period, error) {
	var period models.Period
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&period, id).Error; err != nil {
			return err
		}
		if period.Closed {
			return ErrAlreadyClosed
		}

		actor := actorID
		update := tx.Model(&models.Period{}).
			Where("id = ? AND closed = ?", id, false).
			Updates(map[string]interface{}{
				"closed":    true,
				"closed_at": at,
				"closed_by": &actor,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrAlreadyClosed
		}

		return tx.First(&period, id).Error
	})
	if err != nil {
		return period, err
	}
	return period, nil
}

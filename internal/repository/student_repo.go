package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/models"
)

// StudentRepository resolves the students referenced by grade rows. Students
// are owned elsewhere; this side only reads them.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	NamesByID(ctx context.Context, ids []uint) (map[uint]string, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}
	return student, nil
}

// NamesByID loads display names for a report in one query. Unknown ids are
// simply absent from the map.
func (r *studentRepository) NamesByID(ctx context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var students []models.Student
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&students).Error; err != nil {
		return nil, err
	}
	for _, student := range students {
		names[student.ID] = student.Name
	}
	return names, nil
}

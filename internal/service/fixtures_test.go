package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Course{},
		&models.Section{},
		&models.Period{},
		&models.ClosureState{},
		&models.MonthlyGrade{},
		&models.BimesterExam{},
		&models.ConsolidatedBimester{},
		&models.ConsolidatedAnnual{},
		&models.ActivityLog{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedStudent(t *testing.T, db *gorm.DB, name string) models.Student {
	t.Helper()
	student := models.Student{Name: name}
	require.NoError(t, db.Create(&student).Error)
	return student
}

func seedCourse(t *testing.T, db *gorm.DB, name string) models.Course {
	t.Helper()
	course := models.Course{Name: name, Code: strings.ToUpper(name)}
	require.NoError(t, db.Create(&course).Error)
	return course
}

func seedBimester(t *testing.T, db *gorm.DB, ordinal int, closed bool) models.Period {
	t.Helper()
	start := time.Date(2025, time.Month(3+(ordinal-1)*2), 1, 0, 0, 0, 0, time.UTC)
	period := models.Period{
		Name:      fmt.Sprintf("Bimestre %d", ordinal),
		Kind:      models.PeriodKindBimester,
		Ordinal:   ordinal,
		StartDate: start,
		EndDate:   start.AddDate(0, 2, -1),
		Closed:    closed,
	}
	require.NoError(t, db.Create(&period).Error)
	return period
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
	err     error
}

func (r *recordingActivity) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return dto.ActivityResponse{}, r.err
	}
	r.entries = append(r.entries, entry)
	return dto.ActivityResponse{Action: entry.Action}, nil
}

func (r *recordingActivity) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

var errAuditDown = errors.New("audit sink unavailable")

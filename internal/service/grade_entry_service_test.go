package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/models"
	"github.com/noah-isme/libreta-api/internal/repository"
)

func newGradeEntryService(db *gorm.DB, activity ActivityRecorder) (GradeEntryService, ClosureService) {
	closures := NewClosureService(repository.NewClosureRepository(db), repository.NewPeriodRepository(db), testValidator(), activity, testLogger())
	grades := NewGradeEntryService(repository.NewGradeRepository(db), repository.NewPeriodRepository(db), closures, testValidator(), activity, testLogger())
	return grades, closures
}

func TestRecordMonthlyRespectsScopeClosure(t *testing.T) {
	db := setupServiceDB(t)
	activity := &recordingActivity{}
	svc, closures := newGradeEntryService(db, activity)
	ctx := context.Background()

	req := dto.MonthlyGradeRequest{StudentID: 1, CourseID: 2, SectionID: 3, Month: 4, Rubric: " tareas ", Score: decPtr("14.456")}
	resp, err := svc.RecordMonthly(ctx, req, ActivityActor{ID: 9, Role: "teacher"})
	require.NoError(t, err)
	require.Equal(t, "14.46", resp.Score)
	require.Equal(t, "tareas", resp.Rubric)

	req.Score = decPtr("15")
	_, err = svc.RecordMonthly(ctx, req, ActivityActor{ID: 9})
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.MonthlyGrade{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = closures.SetState(ctx, dto.ClosureStateRequest{CourseID: 2, SectionID: 3, PeriodUnit: 4, State: "CLOSED"}, ActivityActor{ID: 1})
	require.NoError(t, err)

	req.Score = decPtr("20")
	_, err = svc.RecordMonthly(ctx, req, ActivityActor{ID: 9})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, CodeScopeClosed, conflict.Code)

	var stored models.MonthlyGrade
	require.NoError(t, db.First(&stored).Error)
	require.Equal(t, "15.00", stored.Score.StringFixed(2))

	req.Month = 5
	_, err = svc.RecordMonthly(ctx, req, ActivityActor{ID: 9})
	require.NoError(t, err)
}

func TestRecordExamRespectsPeriodClosure(t *testing.T) {
	db := setupServiceDB(t)
	svc, closures := newGradeEntryService(db, &recordingActivity{})
	ctx := context.Background()
	period := seedBimester(t, db, 2, false)

	req := dto.ExamGradeRequest{StudentID: 1, CourseID: 2, SectionID: 3, Bimester: 2, Score: decPtr("17")}
	resp, err := svc.RecordExam(ctx, req, ActivityActor{ID: 9})
	require.NoError(t, err)
	require.Equal(t, "17.00", resp.Score)

	_, err = closures.ClosePeriod(ctx, period.ID, ActivityActor{ID: 1})
	require.NoError(t, err)

	_, err = svc.RecordExam(ctx, req, ActivityActor{ID: 9})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, CodePeriodClosed, conflict.Code)

	req.Bimester = 3
	_, err = svc.RecordExam(ctx, req, ActivityActor{ID: 9})
	var missing *NotFoundError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "bimester", missing.Resource)
}

func TestRecordGradeRejectsOutOfRange(t *testing.T) {
	db := setupServiceDB(t)
	svc, _ := newGradeEntryService(db, &recordingActivity{})

	_, err := svc.RecordMonthly(context.Background(), dto.MonthlyGradeRequest{StudentID: 1, CourseID: 2, SectionID: 3, Month: 4, Rubric: "x", Score: decPtr("-1")}, ActivityActor{ID: 1})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "score", verr.Fields[0].Field)

	_, err = svc.RecordExam(context.Background(), dto.ExamGradeRequest{StudentID: 1, CourseID: 2, SectionID: 3, Bimester: 5, Score: decPtr("10")}, ActivityActor{ID: 1})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "bimester", verr.Fields[0].Field)
}

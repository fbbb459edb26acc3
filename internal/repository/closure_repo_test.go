package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/libreta-api/internal/models"
)

func TestClosureSetReportsPreviousState(t *testing.T) {
	db := openTestDB(t)
	repo := NewClosureRepository(db)
	ctx := context.Background()
	key := ClosureKey{CourseID: 1, SectionID: 2, PeriodUnit: 4}

	_, err := repo.Get(ctx, key)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	actor := uint(9)
	now := time.Now().UTC()
	prev, err := repo.Set(ctx, models.ClosureState{CourseID: 1, SectionID: 2, PeriodUnit: 4, State: models.ClosureUnderReview, ChangedBy: &actor, ChangedAt: &now})
	require.NoError(t, err)
	require.Equal(t, models.ClosureOpen, prev)

	prev, err = repo.Set(ctx, models.ClosureState{CourseID: 1, SectionID: 2, PeriodUnit: 4, State: models.ClosureClosed, ChangedBy: &actor, ChangedAt: &now})
	require.NoError(t, err)
	require.Equal(t, models.ClosureUnderReview, prev)

	state, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, state.IsClosed())

	states, err := repo.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, states, 1)
}

func TestPeriodCloseIsOneShot(t *testing.T) {
	db := openTestDB(t)
	repo := NewPeriodRepository(db)
	ctx := context.Background()
	period := seedPeriod(t, db, 2, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), false)

	first := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	closed, err := repo.Close(ctx, period.ID, 3, first)
	require.NoError(t, err)
	require.True(t, closed.Closed)
	require.NotNil(t, closed.ClosedBy)
	require.Equal(t, uint(3), *closed.ClosedBy)

	again, err := repo.Close(ctx, period.ID, 4, first.Add(time.Hour))
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.Equal(t, uint(3), *again.ClosedBy)
	require.True(t, again.ClosedAt.Equal(first))

	_, err = repo.Close(ctx, 9999, 1, first)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	found, err := repo.GetByOrdinal(ctx, models.PeriodKindBimester, 2)
	require.NoError(t, err)
	require.Equal(t, period.ID, found.ID)
}

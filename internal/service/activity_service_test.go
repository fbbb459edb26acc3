package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/libreta-api/internal/dto"
	"github.com/noah-isme/libreta-api/internal/models"
	"github.com/noah-isme/libreta-api/internal/observability"
	"github.com/noah-isme/libreta-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestActivityServiceRecordMasksEmailAndPublishes(t *testing.T) {
	repo := &memoryActivityRepo{}
	publisher := &capturePublisher{}
	svc := NewActivityService(repo, publisher, "", testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Director",
		Action:     "Closure.Closed",
		EntityType: "closure_state",
		EntityKey:  "1:2:5",
		Metadata: map[string]interface{}{
			"email": "director@example.com",
			"state": "CLOSED",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["email"])
	require.Equal(t, "CLOSED", entry.Metadata["state"])
	require.Equal(t, "director", entry.ActorRole)
	require.Equal(t, "closure.closed", entry.Action)

	require.Equal(t, []string{"libreta.audit.closure.closed"}, publisher.subjects)
	var published dto.ActivityResponse
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &published))
	require.Equal(t, "1:2:5", published.EntityKey)
}

func TestActivityServicePublishFailureDoesNotFailRecord(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, &capturePublisher{err: errors.New("nats down")}, "audit", testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{Action: "ugel.upload", EntityType: "upload"})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)
	require.Equal(t, "system", repo.entries[0].ActorRole)

	_, err = svc.Record(context.Background(), ActivityEntry{EntityType: "upload"})
	require.Error(t, err)
}

func TestActivityServiceListPaginates(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), nil, "", testLogger())
	ctx := context.Background()

	for _, action := range []string{"period.closed", "closure.open", "closure.closed"} {
		_, err := svc.Record(ctx, ActivityEntry{ActorID: 2, Action: action, EntityType: "closure_state", EntityKey: "1:1:3"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, dto.ActivityListRequest{Page: 1, PageSize: 2, EntityType: "closure_state"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(3), page.Pagination.TotalItems)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Equal(t, "closure.closed", page.Items[0].Action)

	closures, err := svc.List(ctx, dto.ActivityListRequest{ActionPrefix: "Closure."})
	require.NoError(t, err)
	require.Equal(t, int64(2), closures.Pagination.TotalItems)
}

func TestActivityServiceStampsCorrelationID(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), nil, "", testLogger())
	ctx := observability.WithCorrelationID(context.Background(), "req-42")

	recordActivity(ctx, svc, testLogger(), ActivityEntry{ActorID: 3, Action: "ugel.upload", EntityType: "upload", EntityKey: "tok"})
	_, err := svc.Record(context.Background(), ActivityEntry{ActorID: 3, Action: "ugel.export", EntityType: "upload", EntityKey: "tok"})
	require.NoError(t, err)

	traced, err := svc.List(context.Background(), dto.ActivityListRequest{CorrelationID: "req-42"})
	require.NoError(t, err)
	require.Len(t, traced.Items, 1)
	require.Equal(t, "ugel.upload", traced.Items[0].Action)
	require.Equal(t, "req-42", traced.Items[0].CorrelationID)
}

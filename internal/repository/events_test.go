package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homewatch-policy/internal/models"
)

func setupMockEventsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EventsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewEventsRepository(db, logger)

	return db, mock, repo
}

func TestCreateEvent_Success(t *testing.T) {
	db, mock, repo := setupMockEventsDB(t)
	defer db.Close()

	event := &models.Event{
		EventID:   uuid.New().String(),
		TenantID:  uuid.New().String(),
		HouseID:   uuid.New().String(),
		DeviceID:  uuid.New().String(),
		EventType: "motion",
		RawData:   json.RawMessage(`{"frames": 12}`),
	}

	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	err := repo.CreateEvent(context.Background(), event)

	require.NoError(t, err)
	assert.False(t, event.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvent_NotFound(t *testing.T) {
	db, mock, repo := setupMockEventsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	eventID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID, tenantID).
		WillReturnError(sql.ErrNoRows)

	event, err := repo.GetEvent(context.Background(), tenantID, eventID)

	assert.Nil(t, event)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCountProcessedByLabel(t *testing.T) {
	db, mock, repo := setupMockEventsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	houseID := uuid.New().String()
	until := time.Now()
	since := until.Add(-60 * time.Second)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(tenantID, houseID, "fall", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountProcessedByLabel(context.Background(), tenantID, houseID, "fall", since, until)

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountProcessedByLabel_WindowIsBoundedAboveByEventTime(t *testing.T) {
	db, mock, repo := setupMockEventsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	houseID := uuid.New().String()
	until := time.Now()
	since := until.Add(-60 * time.Second)

	// 上界必须以参数形式传入，晚于事件时间戳的行不计入
	mock.ExpectQuery(`created_at > \$4\s+AND created_at <= \$5`).
		WithArgs(tenantID, houseID, "fall", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	count, err := repo.CountProcessedByLabel(context.Background(), tenantID, houseID, "fall", since, until)

	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed_Success(t *testing.T) {
	db, mock, repo := setupMockEventsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE events`).
		WithArgs(eventID, tenantID, "distress", 0.88).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkProcessed(context.Background(), tenantID, eventID,
		&models.Classification{Label: "distress", Score: 0.88})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed_EventMissing(t *testing.T) {
	db, mock, repo := setupMockEventsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE events`).
		WithArgs(eventID, tenantID, "distress", 0.88).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkProcessed(context.Background(), tenantID, eventID,
		&models.Classification{Label: "distress", Score: 0.88})

	assert.ErrorIs(t, err, ErrEventNotFound)
}

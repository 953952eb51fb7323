package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockMLModelsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *MLModelsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewMLModelsRepository(db, logger)

	return db, mock, repo
}

func mlModelRows(modelID, name string, isActive bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"model_id", "model_name", "version", "file_path", "description",
		"model_type", "accuracy", "is_active", "created_at", "updated_at",
	}).AddRow(
		modelID, name, "1.2.0", "/models/"+name+".onnx", nil,
		"classifier", 0.94, isActive, time.Now(), time.Now(),
	)
}

func TestGetModel_Success(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	modelID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(modelID).
		WillReturnRows(mlModelRows(modelID, "fall-detector", true))

	model, err := repo.GetModel(context.Background(), modelID)

	require.NoError(t, err)
	assert.Equal(t, "fall-detector", model.ModelName)
	assert.True(t, model.IsActive)
	require.NotNil(t, model.Accuracy)
	assert.Equal(t, 0.94, *model.Accuracy)
}

func TestGetModel_NotFound(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	modelID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(modelID).
		WillReturnError(sql.ErrNoRows)

	model, err := repo.GetModel(context.Background(), modelID)

	assert.Nil(t, model)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestGetActiveModel_NoneReturnsNilNil(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrNoRows)

	model, err := repo.GetActiveModel(context.Background())

	require.NoError(t, err)
	assert.Nil(t, model)
}

func TestActivateModelTx_Success(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	modelID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE ml_models SET is_active = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE ml_models SET is_active = TRUE`).
		WithArgs(modelID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	loaded := false
	err := repo.ActivateModelTx(context.Background(), modelID, func() error {
		loaded = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, loaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateModelTx_RollbackOnLoadFailure(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	modelID := uuid.New().String()
	loadErr := errors.New("corrupt artifact")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE ml_models SET is_active = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE ml_models SET is_active = TRUE`).
		WithArgs(modelID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := repo.ActivateModelTx(context.Background(), modelID, func() error {
		return loadErr
	})

	assert.ErrorIs(t, err, loadErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateModelTx_UnknownModel(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	modelID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE ml_models SET is_active = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE ml_models SET is_active = TRUE`).
		WithArgs(modelID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ActivateModelTx(context.Background(), modelID, nil)

	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestDeleteModel_NotFound(t *testing.T) {
	db, mock, repo := setupMockMLModelsDB(t)
	defer db.Close()

	modelID := uuid.New().String()

	mock.ExpectExec(`DELETE FROM ml_models`).
		WithArgs(modelID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteModel(context.Background(), modelID)

	assert.ErrorIs(t, err, ErrModelNotFound)
}

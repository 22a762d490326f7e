package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := newPostgresWithPool(mock)
	return s, mock
}

func jobRow(mock pgxmock.PgxPoolIface, status model.JobStatus, progress int) *pgxmock.Rows {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return mock.NewRows([]string{
		"id", "upload_batch_id", "kind", "status", "progress", "result",
		"error_message", "created_at", "started_at", "completed_at",
	}).AddRow(
		"job-1", "batch-1", model.JobKindVerification, status, progress, []byte(nil),
		"", started, &started, (*time.Time)(nil),
	)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS processing_jobs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, upload_batch_id, kind, status, progress, result, error_message, created_at, started_at, completed_at FROM processing_jobs WHERE id = \$1`).
		WithArgs("nonexistent-job").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nonexistent-job")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM processing_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(jobRow(mock, model.JobStatusRunning, 40))

	j, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, j.Status)
	assert.Equal(t, 40, j.Progress)
	assert.NotNil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Nil(t, j.Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJob_CompareAndSet(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM processing_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(jobRow(mock, model.JobStatusRunning, 40))
	mock.ExpectExec(`UPDATE processing_jobs SET .* WHERE id = \$7 AND status = \$8 AND progress = \$9`).
		WithArgs("running", 60, pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), "job-1", "running", 40).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	j, err := s.UpdateJob(context.Background(), "job-1", model.JobUpdate{Progress: model.Ptr(60)})
	require.NoError(t, err)
	assert.Equal(t, 60, j.Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJob_ConcurrentModification(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	for range casAttempts {
		mock.ExpectQuery(`FROM processing_jobs WHERE id = \$1`).
			WithArgs("job-1").
			WillReturnRows(jobRow(mock, model.JobStatusRunning, 40))
		mock.ExpectExec(`UPDATE processing_jobs`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	}

	_, err := s.UpdateJob(context.Background(), "job-1", model.JobUpdate{Progress: model.Ptr(50)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent modification")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJob_TerminalRejected(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM processing_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(jobRow(mock, model.JobStatusStopped, 30))

	_, err := s.UpdateJob(context.Background(), "job-1", model.JobUpdate{
		Status:   model.Ptr(model.JobStatusCompleted),
		Progress: model.Ptr(100),
	})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRecords_CopyFrom(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT 1 FROM upload_batches WHERE id = \$1`).
		WithArgs("batch-1").
		WillReturnRows(mock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectCopyFrom(pgx.Identifier{"business_records"}, pgRecordColumnList).
		WillReturnResult(2)

	out, err := s.CreateRecords(context.Background(), []model.Record{
		{UploadBatchID: "batch-1", CompanyName: "Acme Dental"},
		{UploadBatchID: "batch-1", CompanyName: "Bright Smiles", OriginalRowIndex: 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, model.RecordStatusPending, out[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRecords_MissingBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT 1 FROM upload_batches WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.CreateRecords(context.Background(), []model.Record{{UploadBatchID: "missing"}})
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE business_records SET deleted = true`).
		WithArgs(pgxmock.AnyArg(), "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE business_records SET deleted = true`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.DeleteRecord(context.Background(), "rec-1"))
	assert.True(t, IsNotFound(s.DeleteRecord(context.Background(), "missing")))
	// Only the record row is touched; upload_batches counts stay as they were.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecords_ExcludesDeleted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := mock.NewRows([]string{
		"id", "upload_batch_id", "company_name", "email", "phone", "website", "address", "industry",
		"status", "verification", "original_row_index", "deleted", "created_at", "updated_at",
	}).AddRow(
		"rec-1", "batch-1", "Acme Dental", "", "", "", "1 Main St", "dentist",
		model.RecordStatusVerified, []byte(`{"confidence":0.9,"verified":true,"source":"google_places"}`),
		0, false, now, now,
	)
	mock.ExpectQuery(`FROM business_records\s+WHERE upload_batch_id = \$1 AND NOT deleted`).
		WithArgs("batch-1").
		WillReturnRows(rows)

	records, err := s.GetRecords(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Verification)
	assert.True(t, records[0].Verification.Verified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJSONBValue_NilBecomesNull(t *testing.T) {
	var r *model.JobResult
	data, err := jsonbValue(r)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = jsonbValue(&model.JobResult{Kind: model.JobKindProspecting})
	require.NoError(t, err)
	assert.Contains(t, string(data), "prospecting")
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// casAttempts bounds optimistic retries of job updates.
const casAttempts = 5

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps per-connection pragmas in force and serializes
	// writers from concurrent jobs.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS upload_batches (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	raw_data          TEXT,
	mapped_data       TEXT,
	status            TEXT NOT NULL DEFAULT 'uploaded',
	total_records     INTEGER NOT NULL DEFAULT 0,
	processed_records INTEGER NOT NULL DEFAULT 0,
	verified_records  INTEGER NOT NULL DEFAULT 0,
	error_records     INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id              TEXT PRIMARY KEY,
	upload_batch_id TEXT NOT NULL REFERENCES upload_batches(id),
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	progress        INTEGER NOT NULL DEFAULT 0,
	result          TEXT,
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at      DATETIME,
	completed_at    DATETIME
);

CREATE TABLE IF NOT EXISTS business_records (
	id                 TEXT PRIMARY KEY,
	upload_batch_id    TEXT NOT NULL REFERENCES upload_batches(id),
	company_name       TEXT NOT NULL DEFAULT '',
	email              TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'pending',
	verification       TEXT,
	original_row_index INTEGER NOT NULL DEFAULT 0,
	deleted            INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_batch ON processing_jobs(upload_batch_id);
CREATE INDEX IF NOT EXISTS idx_records_batch ON business_records(upload_batch_id, deleted, original_row_index);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	prepareUser(&u, s.nowFunc())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert user")
	}
	return &u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user %s", id)
	}
	return &u, nil
}

// --- Upload batches ---

const sqliteBatchColumns = `id, user_id, name, raw_data, mapped_data, status, total_records, processed_records, verified_records, error_records, created_at, updated_at`

func (s *SQLiteStore) CreateUploadBatch(ctx context.Context, b model.UploadBatch) (*model.UploadBatch, error) {
	prepareBatch(&b, s.nowFunc())

	raw, err := marshalNullable(b.RawData)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal raw data")
	}
	mapped, err := marshalNullable(b.MappedData)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal mapped data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO upload_batches (`+sqliteBatchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, raw, mapped, string(b.Status),
		b.TotalRecords, b.ProcessedRecords, b.VerifiedRecords, b.ErrorRecords,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert upload batch")
	}
	return &b, nil
}

func (s *SQLiteStore) GetUploadBatch(ctx context.Context, id string) (*model.UploadBatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteBatchColumns+` FROM upload_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("upload batch", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get upload batch %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) UpdateUploadBatch(ctx context.Context, id string, u model.UploadBatchUpdate) (*model.UploadBatch, error) {
	b, err := s.GetUploadBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(b)
	b.UpdatedAt = s.nowFunc()

	mapped, err := marshalNullable(b.MappedData)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal mapped data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE upload_batches SET name = ?, mapped_data = ?, status = ?, total_records = ?,
		 processed_records = ?, verified_records = ?, error_records = ?, updated_at = ? WHERE id = ?`,
		b.Name, mapped, string(b.Status), b.TotalRecords,
		b.ProcessedRecords, b.VerifiedRecords, b.ErrorRecords, b.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update upload batch %s", id)
	}
	if err := checkRowsAffected(res, "upload batch", id); err != nil {
		return nil, err
	}
	return b, nil
}

// --- Jobs ---

const sqliteJobColumns = `id, upload_batch_id, kind, status, progress, result, error_message, created_at, started_at, completed_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, j model.Job) (*model.Job, error) {
	if _, err := s.GetUploadBatch(ctx, j.UploadBatchID); err != nil {
		return nil, err
	}
	prepareJob(&j, s.nowFunc())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_jobs (id, upload_batch_id, kind, status, progress, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.UploadBatchID, string(j.Kind), string(j.Status), j.Progress, j.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM processing_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return j, nil
}

// UpdateJob applies u with a compare-and-set on the status and progress it
// read, so concurrent writers cannot skip the state machine.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, u model.JobUpdate) (*model.Job, error) {
	for range casAttempts {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		prevStatus, prevProgress := j.Status, j.Progress
		if !u.Apply(j) {
			return nil, invalidTransition(j, u)
		}

		result, err := marshalNullable(j.Result)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal job result")
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE processing_jobs SET status = ?, progress = ?, result = ?, error_message = ?, started_at = ?, completed_at = ?
			 WHERE id = ? AND status = ? AND progress = ?`,
			string(j.Status), j.Progress, result, j.ErrorMessage, nullTime(j.StartedAt), nullTime(j.CompletedAt),
			id, string(prevStatus), prevProgress,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update job %s", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 1 {
			return j, nil
		}
	}
	return nil, eris.Errorf("sqlite: update job %s: concurrent modification", id)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, batchID string) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM processing_jobs WHERE upload_batch_id = ? ORDER BY created_at DESC`, batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// --- Records ---

const sqliteRecordColumns = `id, upload_batch_id, company_name, email, phone, website, address, industry, status, verification, original_row_index, deleted, created_at, updated_at`

func (s *SQLiteStore) CreateRecord(ctx context.Context, r model.Record) (*model.Record, error) {
	out, err := s.CreateRecords(ctx, []model.Record{r})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *SQLiteStore) CreateRecords(ctx context.Context, rs []model.Record) ([]model.Record, error) {
	if len(rs) == 0 {
		return []model.Record{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	known := make(map[string]bool)
	now := s.nowFunc()
	out := make([]model.Record, len(rs))
	for i, r := range rs {
		if !known[r.UploadBatchID] {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM upload_batches WHERE id = ?`, r.UploadBatchID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("upload batch", r.UploadBatchID)
			}
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: check upload batch")
			}
			known[r.UploadBatchID] = true
		}

		prepareRecord(&r, now)
		verification, err := marshalNullable(r.Verification)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal verification")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO business_records (`+sqliteRecordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.UploadBatchID, r.CompanyName, r.Email, r.Phone, r.Website, r.Address, r.Industry,
			string(r.Status), verification, r.OriginalRowIndex, r.Deleted, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert record")
		}
		out[i] = r
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit records")
	}
	return out, nil
}

func (s *SQLiteStore) GetRecords(ctx context.Context, batchID string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM business_records
		 WHERE upload_batch_id = ? AND deleted = 0
		 ORDER BY original_row_index, created_at`, batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get records")
	}
	defer rows.Close() //nolint:errcheck

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: get records iterate")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRecordColumns+` FROM business_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("record", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, id string, u model.RecordUpdate) (*model.Record, error) {
	r, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(r)
	r.UpdatedAt = s.nowFunc()

	verification, err := marshalNullable(r.Verification)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal verification")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE business_records SET company_name = ?, email = ?, phone = ?, website = ?, address = ?, industry = ?,
		 status = ?, verification = ?, updated_at = ? WHERE id = ?`,
		r.CompanyName, r.Email, r.Phone, r.Website, r.Address, r.Industry,
		string(r.Status), verification, r.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update record %s", id)
	}
	if err := checkRowsAffected(res, "record", id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE business_records SET deleted = 1, updated_at = ? WHERE id = ?`,
		s.nowFunc(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete record %s", id)
	}
	return checkRowsAffected(res, "record", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*model.UploadBatch, error) {
	var b model.UploadBatch
	var raw, mapped sql.NullString
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &raw, &mapped, &b.Status,
		&b.TotalRecords, &b.ProcessedRecords, &b.VerifiedRecords, &b.ErrorRecords,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalNullable(raw, &b.RawData); err != nil {
		return nil, eris.Wrap(err, "unmarshal raw data")
	}
	if err := unmarshalNullable(mapped, &b.MappedData); err != nil {
		return nil, eris.Wrap(err, "unmarshal mapped data")
	}
	return &b, nil
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var result sql.NullString
	var started, completed sql.NullTime
	err := row.Scan(&j.ID, &j.UploadBatchID, &j.Kind, &j.Status, &j.Progress, &result,
		&j.ErrorMessage, &j.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if result.Valid {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal([]byte(result.String), j.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal job result")
		}
	}
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	return &j, nil
}

func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var verification sql.NullString
	err := row.Scan(&r.ID, &r.UploadBatchID, &r.CompanyName, &r.Email, &r.Phone, &r.Website,
		&r.Address, &r.Industry, &r.Status, &verification, &r.OriginalRowIndex, &r.Deleted,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if verification.Valid {
		r.Verification = &model.Verification{}
		if err := json.Unmarshal([]byte(verification.String), r.Verification); err != nil {
			return nil, eris.Wrap(err, "unmarshal verification")
		}
	}
	return &r, nil
}

// marshalNullable encodes v as JSON, returning nil for nil pointers and
// nil slices so the column stays NULL.
func marshalNullable[T any](v T) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func unmarshalNullable[T any](s sql.NullString, dst *T) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

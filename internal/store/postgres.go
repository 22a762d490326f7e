package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, nowFunc: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS upload_batches (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id           TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	raw_data          JSONB,
	mapped_data       JSONB,
	status            TEXT NOT NULL DEFAULT 'uploaded',
	total_records     INTEGER NOT NULL DEFAULT 0,
	processed_records INTEGER NOT NULL DEFAULT 0,
	verified_records  INTEGER NOT NULL DEFAULT 0,
	error_records     INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	upload_batch_id TEXT NOT NULL REFERENCES upload_batches(id),
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	progress        INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	result          JSONB,
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS business_records (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	upload_batch_id    TEXT NOT NULL REFERENCES upload_batches(id),
	company_name       TEXT NOT NULL DEFAULT '',
	email              TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'pending',
	verification       JSONB,
	original_row_index INTEGER NOT NULL DEFAULT 0,
	deleted            BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_batch ON processing_jobs(upload_batch_id);
CREATE INDEX IF NOT EXISTS idx_records_batch_live ON business_records(upload_batch_id, original_row_index) WHERE NOT deleted;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	prepareUser(&u, s.nowFunc())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.Name, u.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert user")
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user %s", id)
	}
	return &u, nil
}

// --- Upload batches ---

const pgBatchColumns = `id, user_id, name, raw_data, mapped_data, status, total_records, processed_records, verified_records, error_records, created_at, updated_at`

func (s *PostgresStore) CreateUploadBatch(ctx context.Context, b model.UploadBatch) (*model.UploadBatch, error) {
	prepareBatch(&b, s.nowFunc())

	raw, err := jsonbValue(b.RawData)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal raw data")
	}
	mapped, err := jsonbValue(b.MappedData)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal mapped data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO upload_batches (`+pgBatchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.UserID, b.Name, raw, mapped, string(b.Status),
		b.TotalRecords, b.ProcessedRecords, b.VerifiedRecords, b.ErrorRecords,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert upload batch")
	}
	return &b, nil
}

func (s *PostgresStore) GetUploadBatch(ctx context.Context, id string) (*model.UploadBatch, error) {
	var b model.UploadBatch
	var raw, mapped []byte
	err := s.pool.QueryRow(ctx, `SELECT `+pgBatchColumns+` FROM upload_batches WHERE id = $1`, id).Scan(
		&b.ID, &b.UserID, &b.Name, &raw, &mapped, &b.Status,
		&b.TotalRecords, &b.ProcessedRecords, &b.VerifiedRecords, &b.ErrorRecords,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("upload batch", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get upload batch %s", id)
	}
	if err := unmarshalJSONB(raw, &b.RawData); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw data")
	}
	if err := unmarshalJSONB(mapped, &b.MappedData); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal mapped data")
	}
	return &b, nil
}

func (s *PostgresStore) UpdateUploadBatch(ctx context.Context, id string, u model.UploadBatchUpdate) (*model.UploadBatch, error) {
	b, err := s.GetUploadBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(b)
	b.UpdatedAt = s.nowFunc()

	mapped, err := jsonbValue(b.MappedData)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal mapped data")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE upload_batches SET name = $1, mapped_data = $2, status = $3, total_records = $4,
		 processed_records = $5, verified_records = $6, error_records = $7, updated_at = $8 WHERE id = $9`,
		b.Name, mapped, string(b.Status), b.TotalRecords,
		b.ProcessedRecords, b.VerifiedRecords, b.ErrorRecords, b.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update upload batch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("upload batch", id)
	}
	return b, nil
}

// --- Jobs ---

const pgJobColumns = `id, upload_batch_id, kind, status, progress, result, error_message, created_at, started_at, completed_at`

func (s *PostgresStore) CreateJob(ctx context.Context, j model.Job) (*model.Job, error) {
	if err := s.requireBatch(ctx, j.UploadBatchID); err != nil {
		return nil, err
	}
	prepareJob(&j, s.nowFunc())

	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_jobs (id, upload_batch_id, kind, status, progress, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.UploadBatchID, string(j.Kind), string(j.Status), j.Progress, j.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanPgJob(s.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("job", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return j, nil
}

// UpdateJob applies u with a compare-and-set on the status and progress it
// read, so concurrent writers cannot skip the state machine.
func (s *PostgresStore) UpdateJob(ctx context.Context, id string, u model.JobUpdate) (*model.Job, error) {
	for range casAttempts {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		prevStatus, prevProgress := j.Status, j.Progress
		if !u.Apply(j) {
			return nil, invalidTransition(j, u)
		}

		result, err := jsonbValue(j.Result)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal job result")
		}

		tag, err := s.pool.Exec(ctx,
			`UPDATE processing_jobs SET status = $1, progress = $2, result = $3, error_message = $4, started_at = $5, completed_at = $6
			 WHERE id = $7 AND status = $8 AND progress = $9`,
			string(j.Status), j.Progress, result, j.ErrorMessage, j.StartedAt, j.CompletedAt,
			id, string(prevStatus), prevProgress,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: update job %s", id)
		}
		if tag.RowsAffected() == 1 {
			return j, nil
		}
	}
	return nil, eris.Errorf("postgres: update job %s: concurrent modification", id)
}

func (s *PostgresStore) ListJobs(ctx context.Context, batchID string) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgJobColumns+` FROM processing_jobs WHERE upload_batch_id = $1 ORDER BY created_at DESC`, batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// --- Records ---

const pgRecordColumns = `id, upload_batch_id, company_name, email, phone, website, address, industry, status, verification, original_row_index, deleted, created_at, updated_at`

var pgRecordColumnList = []string{
	"id", "upload_batch_id", "company_name", "email", "phone", "website", "address", "industry",
	"status", "verification", "original_row_index", "deleted", "created_at", "updated_at",
}

func (s *PostgresStore) CreateRecord(ctx context.Context, r model.Record) (*model.Record, error) {
	out, err := s.CreateRecords(ctx, []model.Record{r})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// CreateRecords bulk-inserts records with COPY after checking that every
// owning batch exists.
func (s *PostgresStore) CreateRecords(ctx context.Context, rs []model.Record) ([]model.Record, error) {
	if len(rs) == 0 {
		return []model.Record{}, nil
	}

	known := make(map[string]bool)
	now := s.nowFunc()
	out := make([]model.Record, len(rs))
	rows := make([][]any, len(rs))
	for i, r := range rs {
		if !known[r.UploadBatchID] {
			if err := s.requireBatch(ctx, r.UploadBatchID); err != nil {
				return nil, err
			}
			known[r.UploadBatchID] = true
		}

		prepareRecord(&r, now)
		verification, err := jsonbValue(r.Verification)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal verification")
		}
		rows[i] = []any{
			r.ID, r.UploadBatchID, r.CompanyName, r.Email, r.Phone, r.Website, r.Address, r.Industry,
			string(r.Status), verification, r.OriginalRowIndex, r.Deleted, r.CreatedAt, r.UpdatedAt,
		}
		out[i] = r
	}

	if _, err := db.CopyFrom(ctx, s.pool, "business_records", pgRecordColumnList, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: insert records")
	}
	return out, nil
}

func (s *PostgresStore) GetRecords(ctx context.Context, batchID string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM business_records
		 WHERE upload_batch_id = $1 AND NOT deleted
		 ORDER BY original_row_index, created_at`, batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get records")
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: get records iterate")
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	r, err := scanPgRecord(s.pool.QueryRow(ctx, `SELECT `+pgRecordColumns+` FROM business_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("record", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, id string, u model.RecordUpdate) (*model.Record, error) {
	r, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Apply(r)
	r.UpdatedAt = s.nowFunc()

	verification, err := jsonbValue(r.Verification)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal verification")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE business_records SET company_name = $1, email = $2, phone = $3, website = $4, address = $5, industry = $6,
		 status = $7, verification = $8, updated_at = $9 WHERE id = $10`,
		r.CompanyName, r.Email, r.Phone, r.Website, r.Address, r.Industry,
		string(r.Status), verification, r.UpdatedAt, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("record", id)
	}
	return r, nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE business_records SET deleted = true, updated_at = $1 WHERE id = $2`,
		s.nowFunc(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("record", id)
	}
	return nil
}

// helpers

func (s *PostgresStore) requireBatch(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM upload_batches WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("upload batch", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check upload batch %s", id)
	}
	return nil
}

func scanPgJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var result []byte
	err := row.Scan(&j.ID, &j.UploadBatchID, &j.Kind, &j.Status, &j.Progress, &result,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal(result, j.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal job result")
		}
	}
	return &j, nil
}

func scanPgRecord(row pgx.Row) (*model.Record, error) {
	var r model.Record
	var verification []byte
	err := row.Scan(&r.ID, &r.UploadBatchID, &r.CompanyName, &r.Email, &r.Phone, &r.Website,
		&r.Address, &r.Industry, &r.Status, &verification, &r.OriginalRowIndex, &r.Deleted,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(verification) > 0 {
		r.Verification = &model.Verification{}
		if err := json.Unmarshal(verification, r.Verification); err != nil {
			return nil, eris.Wrap(err, "unmarshal verification")
		}
	}
	return &r, nil
}

// jsonbValue encodes v for a JSONB column; nil pointers and nil slices
// become NULL.
func jsonbValue[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

func unmarshalJSONB[T any](data []byte, dst *T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

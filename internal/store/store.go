// Package store persists users, upload batches, jobs and business records.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = eris.New("not found")
	// ErrInvalidTransition is returned when a job update violates the job
	// state machine, including any update to a terminal job.
	ErrInvalidTransition = eris.New("invalid job status transition")
)

// IsNotFound reports whether err (or its chain) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the Record Store consumed by the job orchestrator. All
// mutations are single-entity read-modify-write operations and every
// implementation is safe for concurrent use by multiple in-flight jobs.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)

	// Upload batches
	CreateUploadBatch(ctx context.Context, b model.UploadBatch) (*model.UploadBatch, error)
	GetUploadBatch(ctx context.Context, id string) (*model.UploadBatch, error)
	UpdateUploadBatch(ctx context.Context, id string, u model.UploadBatchUpdate) (*model.UploadBatch, error)

	// Jobs
	CreateJob(ctx context.Context, j model.Job) (*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, id string, u model.JobUpdate) (*model.Job, error)
	ListJobs(ctx context.Context, batchID string) ([]model.Job, error)

	// Records
	CreateRecord(ctx context.Context, r model.Record) (*model.Record, error)
	CreateRecords(ctx context.Context, rs []model.Record) ([]model.Record, error)
	// GetRecords returns the non-deleted records of a batch ordered by
	// original row index.
	GetRecords(ctx context.Context, batchID string) ([]model.Record, error)
	// GetRecord returns a record by id, including soft-deleted ones.
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	UpdateRecord(ctx context.Context, id string, u model.RecordUpdate) (*model.Record, error)
	DeleteRecord(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func invalidTransition(j *model.Job, u model.JobUpdate) error {
	to := j.Status
	if u.Status != nil {
		to = *u.Status
	}
	return eris.Wrapf(ErrInvalidTransition, "job %s: %s -> %s", j.ID, j.Status, to)
}

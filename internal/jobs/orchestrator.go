// Package jobs runs verification and prospecting workflows against upload
// batches as supervised background tasks.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
)

// ErrValidation wraps every error returned by StartJob for malformed input.
// No job is created when it is returned.
var ErrValidation = eris.New("jobs: invalid request")

// maxRadiusMeters is the largest circle the places provider accepts.
const maxRadiusMeters = 50_000

// Options parameterize a job. Which fields apply depends on the job kind.
type Options struct {
	BusinessType  string
	Location      string
	Count         int
	Latitude      *float64
	Longitude     *float64
	RadiusMeters  int
	SourceRows    []model.SourceRow
	SourceBatchID string
}

// Settings tune the workflows.
type Settings struct {
	VerificationBatchSize int
	TemplateBatchSize     int
	MaxCandidateLocations int
	DefaultProspectCount  int
	AISampleRows          int
	ExtractionRetry       resilience.RetryConfig
}

// DefaultSettings returns the standard workflow settings.
func DefaultSettings() Settings {
	return Settings{
		VerificationBatchSize: 10,
		TemplateBatchSize:     25,
		MaxCandidateLocations: 8,
		DefaultProspectCount:  50,
		AISampleRows:          50,
		ExtractionRetry:       resilience.ExtractionRetryConfig(),
	}
}

// SettingsFromConfig converts the jobs section of the config. Zero values
// fall back to DefaultSettings.
func SettingsFromConfig(c config.JobsConfig) Settings {
	s := DefaultSettings()
	if c.VerificationBatchSize > 0 {
		s.VerificationBatchSize = c.VerificationBatchSize
	}
	if c.TemplateBatchSize > 0 {
		s.TemplateBatchSize = c.TemplateBatchSize
	}
	if c.MaxCandidateLocations > 0 {
		s.MaxCandidateLocations = c.MaxCandidateLocations
	}
	if c.DefaultProspectCount > 0 {
		s.DefaultProspectCount = c.DefaultProspectCount
	}
	if c.AISampleRows > 0 {
		s.AISampleRows = c.AISampleRows
	}
	s.ExtractionRetry = resilience.FromExtractionConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.Multiplier)
	return s
}

// Orchestrator starts, tracks and stops jobs.
type Orchestrator struct {
	store    store.Store
	lookup   lookup.Lookup
	analyzer lookup.LocationAnalyzer
	settings Settings
	catalog  *lookup.Catalog
	nowFunc  func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.Mutex
	tokens map[string]*StopToken
	wg     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRand sets the random source used by template prospecting.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// WithCatalog replaces the embedded template catalog.
func WithCatalog(c *lookup.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFunc = now }
}

// New creates an Orchestrator. analyzer may be nil, in which case location
// extraction always yields an empty analysis.
func New(st store.Store, lk lookup.Lookup, analyzer lookup.LocationAnalyzer, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		lookup:   lk,
		analyzer: analyzer,
		settings: settings,
		nowFunc:  time.Now,
		tokens:   make(map[string]*StopToken),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		seed := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if o.catalog == nil {
		o.catalog = lookup.DefaultCatalog()
	}
	return o
}

// StartJob validates the request, creates a pending job and launches its
// workflow in the background. The returned Task can be waited on or
// discarded. An empty batchID is allowed for prospecting kinds: the run
// then gets its own batch, named after the run.
func (o *Orchestrator) StartJob(ctx context.Context, kind model.JobKind, batchID string, opts Options) (*Task, error) {
	if !kind.Valid() {
		return nil, validationf("unknown job kind %q", kind)
	}

	var (
		batch *model.UploadBatch
		err   error
	)
	if batchID == "" {
		// A prospecting run without a batch writes into a new one.
		if kind == model.JobKindVerification {
			return nil, validationf("upload batch is required for %s", kind)
		}
		batch = &model.UploadBatch{}
	} else {
		batch, err = o.store.GetUploadBatch(ctx, batchID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, validationf("upload batch %s not found", batchID)
			}
			return nil, eris.Wrap(err, "jobs: load batch")
		}
	}

	run, err := o.prepare(ctx, kind, batch, &opts)
	if err != nil {
		return nil, err
	}

	if batch.ID == "" {
		batch, err = o.store.CreateUploadBatch(ctx, model.UploadBatch{
			Name:   runName(kind, opts),
			Status: model.BatchStatusMapped,
		})
		if err != nil {
			return nil, eris.Wrap(err, "jobs: create run batch")
		}
	}

	job, err := o.store.CreateJob(ctx, model.Job{UploadBatchID: batch.ID, Kind: kind})
	if err != nil {
		return nil, eris.Wrap(err, "jobs: create job")
	}
	if _, err := o.store.UpdateUploadBatch(ctx, batch.ID, model.UploadBatchUpdate{
		Status: model.Ptr(model.BatchStatusProcessing),
	}); err != nil {
		return nil, eris.Wrap(err, "jobs: mark batch processing")
	}

	token := NewStopToken()
	o.mu.Lock()
	o.tokens[job.ID] = token
	o.mu.Unlock()

	task := &Task{JobID: job.ID, BatchID: batch.ID, done: make(chan struct{}), store: o.store}
	o.wg.Add(1)
	// The job outlives the request that started it.
	go o.supervise(context.WithoutCancel(ctx), task, job, token, run)

	zap.L().Info("jobs: started",
		zap.String("job_id", job.ID),
		zap.String("job_kind", string(kind)),
		zap.String("batch_id", batch.ID),
	)
	return task, nil
}

// GetJobStatus returns the current state of a job.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: get status")
	}
	return job, nil
}

// StopJob marks a job stopped. The running workflow notices at its next
// batch or city boundary. Stopping a finished job is a no-op.
func (o *Orchestrator) StopJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: stop")
	}
	if job.Status.Terminal() {
		return job, nil
	}

	updated, err := o.store.UpdateJob(ctx, jobID, model.JobUpdate{
		Status:      model.Ptr(model.JobStatusStopped),
		CompletedAt: model.Ptr(o.nowFunc()),
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		// Finished between the read and the write.
		return o.store.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "jobs: stop")
	}

	o.mu.Lock()
	token := o.tokens[jobID]
	o.mu.Unlock()
	if token != nil {
		token.Stop()
	}

	zap.L().Info("jobs: stop requested", zap.String("job_id", jobID))
	return updated, nil
}

// Wait blocks until every job started by o has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// workflow is a prepared job body. It returns the result summary written on
// completion.
type workflow func(ctx context.Context, j *jobRun) (*model.JobResult, error)

// prepare validates kind-specific options and binds the workflow.
func (o *Orchestrator) prepare(ctx context.Context, kind model.JobKind, batch *model.UploadBatch, opts *Options) (workflow, error) {
	opts.BusinessType = strings.TrimSpace(opts.BusinessType)
	opts.Location = strings.TrimSpace(opts.Location)
	if opts.Count < 0 {
		return nil, validationf("count must not be negative")
	}
	if opts.Count == 0 {
		opts.Count = o.settings.DefaultProspectCount
	}

	switch kind {
	case model.JobKindVerification:
		return o.runVerification, nil

	case model.JobKindProspecting:
		rows, err := o.sourceRows(ctx, batch, opts)
		if err != nil {
			return nil, err
		}
		opts.SourceRows = rows
		return o.runTemplateProspecting(*opts), nil

	case model.JobKindAIProspecting:
		if opts.BusinessType == "" {
			return nil, validationf("business type is required")
		}
		rows, err := o.sourceRows(ctx, batch, opts)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, validationf("source rows are required for %s", kind)
		}
		opts.SourceRows = rows
		return o.runAIProspecting(*opts), nil

	case model.JobKindLocationProspecting:
		if opts.BusinessType == "" {
			return nil, validationf("business type is required")
		}
		if opts.Latitude == nil || opts.Longitude == nil {
			return nil, validationf("latitude and longitude are required")
		}
		if *opts.Latitude < -90 || *opts.Latitude > 90 || *opts.Longitude < -180 || *opts.Longitude > 180 {
			return nil, validationf("coordinates out of range: %f,%f", *opts.Latitude, *opts.Longitude)
		}
		if opts.RadiusMeters <= 0 || opts.RadiusMeters > maxRadiusMeters {
			return nil, validationf("radius must be between 1 and %d meters", maxRadiusMeters)
		}
		return o.runLocationProspecting(*opts), nil
	}
	return nil, validationf("unknown job kind %q", kind)
}

// sourceRows resolves the source data for prospecting: explicit rows, then
// the rows of SourceBatchID, then the job batch's own rows.
func (o *Orchestrator) sourceRows(ctx context.Context, batch *model.UploadBatch, opts *Options) ([]model.SourceRow, error) {
	if len(opts.SourceRows) > 0 {
		return opts.SourceRows, nil
	}
	if opts.SourceBatchID != "" && opts.SourceBatchID != batch.ID {
		src, err := o.store.GetUploadBatch(ctx, opts.SourceBatchID)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, validationf("source batch %s not found", opts.SourceBatchID)
			}
			return nil, eris.Wrap(err, "jobs: load source batch")
		}
		return batchRows(src), nil
	}
	return batchRows(batch), nil
}

func batchRows(b *model.UploadBatch) []model.SourceRow {
	if len(b.MappedData) > 0 {
		return b.MappedData
	}
	return b.RawData
}

// runName names the batch created for a prospecting run.
func runName(kind model.JobKind, opts Options) string {
	parts := []string{string(kind)}
	if opts.BusinessType != "" {
		parts = append(parts, opts.BusinessType)
	}
	switch {
	case opts.Location != "":
		parts = append(parts, opts.Location)
	case opts.Latitude != nil && opts.Longitude != nil:
		parts = append(parts, fmt.Sprintf("%.4f,%.4f", *opts.Latitude, *opts.Longitude))
	}
	return strings.Join(parts, " ")
}

func validationf(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

// float draws from [lo, hi) using the orchestrator's random source.
func (o *Orchestrator) float(lo, hi float64) float64 {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return lo + o.rng.Float64()*(hi-lo)
}

func (o *Orchestrator) intn(n int) int {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.rng.IntN(n)
}

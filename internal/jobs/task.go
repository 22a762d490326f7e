package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// errStopped is returned by workflows that observe a stop request.
var errStopped = eris.New("jobs: stopped")

// Task is the handle for one running job.
type Task struct {
	JobID   string
	BatchID string

	done  chan struct{}
	store store.Store
}

// Done is closed once the job has reached a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the job finishes and returns its final state.
func (t *Task) Wait(ctx context.Context) (*model.Job, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.store.GetJob(ctx, t.JobID)
}

// StopToken is a one-shot cancellation signal checked by workflows at batch
// and city boundaries. In-flight lookups are not interrupted.
type StopToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopToken returns an unsignalled token.
func NewStopToken() *StopToken {
	return &StopToken{ch: make(chan struct{})}
}

// Stop signals the token. Extra calls are no-ops.
func (t *StopToken) Stop() {
	t.once.Do(func() { close(t.ch) })
}

// Stopped reports whether Stop has been called.
func (t *StopToken) Stopped() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// jobRun is the per-job state handed to a workflow.
type jobRun struct {
	o     *Orchestrator
	job   *model.Job
	token *StopToken
	log   *zap.Logger
}

// checkpoint returns errStopped if a stop was requested.
func (j *jobRun) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.token.Stopped() {
		return errStopped
	}
	return nil
}

// progress persists p. A job that was moved to a terminal state behind
// our back is reported as stopped.
func (j *jobRun) progress(ctx context.Context, p int) error {
	_, err := j.o.store.UpdateJob(ctx, j.job.ID, model.JobUpdate{Progress: model.Ptr(p)})
	if errors.Is(err, store.ErrInvalidTransition) {
		return errStopped
	}
	if err != nil {
		return eris.Wrap(err, "jobs: update progress")
	}
	j.log.Debug("jobs: progress", zap.Int("progress", p))
	return nil
}

// supervise runs one workflow to a terminal state. Panics are converted
// into a failed job.
func (o *Orchestrator) supervise(ctx context.Context, task *Task, job *model.Job, token *StopToken, run workflow) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("job_kind", string(job.Kind)),
		zap.String("batch_id", job.UploadBatchID),
	)
	defer o.wg.Done()
	defer close(task.done)
	defer o.release(job.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("jobs: workflow panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.fail(ctx, job, log, eris.Errorf("jobs: internal error: %v", r))
		}
	}()

	running, err := o.store.UpdateJob(ctx, job.ID, model.JobUpdate{
		Status:    model.Ptr(model.JobStatusRunning),
		StartedAt: model.Ptr(o.nowFunc()),
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		// Stopped before it started.
		o.finishStopped(ctx, job, log)
		return
	}
	if err != nil {
		o.fail(ctx, job, log, eris.Wrap(err, "jobs: mark running"))
		return
	}

	result, err := run(ctx, &jobRun{o: o, job: running, token: token, log: log})
	switch {
	case errors.Is(err, errStopped):
		o.finishStopped(ctx, job, log)
	case err != nil:
		o.fail(ctx, job, log, err)
	default:
		o.complete(ctx, job, log, result)
	}
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	delete(o.tokens, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) complete(ctx context.Context, job *model.Job, log *zap.Logger, result *model.JobResult) {
	if _, err := o.reconcileBatch(ctx, job.UploadBatchID, model.BatchStatusCompleted); err != nil {
		o.fail(ctx, job, log, err)
		return
	}
	_, err := o.store.UpdateJob(ctx, job.ID, model.JobUpdate{
		Status:      model.Ptr(model.JobStatusCompleted),
		Progress:    model.Ptr(100),
		Result:      result,
		CompletedAt: model.Ptr(o.nowFunc()),
	})
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		log.Info("jobs: stopped before completion was recorded")
	case err != nil:
		log.Error("jobs: record completion", zap.Error(err))
	default:
		log.Info("jobs: completed")
	}
}

// finishStopped makes sure the job is stopped and leaves the batch with
// counts that reflect the records written so far.
func (o *Orchestrator) finishStopped(ctx context.Context, job *model.Job, log *zap.Logger) {
	_, err := o.store.UpdateJob(ctx, job.ID, model.JobUpdate{
		Status:      model.Ptr(model.JobStatusStopped),
		CompletedAt: model.Ptr(o.nowFunc()),
	})
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		log.Error("jobs: record stop", zap.Error(err))
	}
	if _, err := o.reconcileBatch(ctx, job.UploadBatchID, model.BatchStatusCompleted); err != nil {
		log.Error("jobs: reconcile batch after stop", zap.Error(err))
	}
	log.Info("jobs: stopped")
}

func (o *Orchestrator) fail(ctx context.Context, job *model.Job, log *zap.Logger, cause error) {
	msg := cause.Error()
	log.Error("jobs: failed", zap.Error(cause))

	_, err := o.store.UpdateJob(ctx, job.ID, model.JobUpdate{
		Status:       model.Ptr(model.JobStatusFailed),
		ErrorMessage: &msg,
		CompletedAt:  model.Ptr(o.nowFunc()),
	})
	batchStatus := model.BatchStatusError
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		// Another terminal state won, usually a stop. The batch follows it.
		if cur, gerr := o.store.GetJob(ctx, job.ID); gerr == nil && cur.Status != model.JobStatusFailed {
			log.Info("jobs: failure not recorded", zap.String("status", string(cur.Status)))
			batchStatus = model.BatchStatusCompleted
		}
	case err != nil:
		log.Error("jobs: record failure", zap.Error(err))
	}
	if _, err := o.reconcileBatch(ctx, job.UploadBatchID, batchStatus); err != nil {
		log.Error("jobs: reconcile batch after failure", zap.Error(err))
	}
}

// reconcileBatch recomputes batch counts from its live records and sets
// the batch status.
func (o *Orchestrator) reconcileBatch(ctx context.Context, batchID string, status model.BatchStatus) (model.BatchCounts, error) {
	records, err := o.store.GetRecords(ctx, batchID)
	if err != nil {
		return model.BatchCounts{}, eris.Wrap(err, "jobs: load records for counts")
	}
	counts := model.CountRecords(records)
	u := counts.Update()
	u.Status = &status
	if _, err := o.store.UpdateUploadBatch(ctx, batchID, u); err != nil {
		return counts, eris.Wrap(err, "jobs: update batch counts")
	}
	return counts, nil
}

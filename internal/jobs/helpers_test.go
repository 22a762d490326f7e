package jobs

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// testSettings keeps the retry schedule shape but in milliseconds.
func testSettings() Settings {
	s := DefaultSettings()
	s.ExtractionRetry.InitialBackoff = time.Millisecond
	s.ExtractionRetry.MaxBackoff = 5 * time.Millisecond
	return s
}

// progressStore records every progress value written to a job.
type progressStore struct {
	store.Store

	mu       sync.Mutex
	progress []int
}

func (s *progressStore) UpdateJob(ctx context.Context, id string, u model.JobUpdate) (*model.Job, error) {
	j, err := s.Store.UpdateJob(ctx, id, u)
	if err == nil && u.Progress != nil {
		s.mu.Lock()
		s.progress = append(s.progress, j.Progress)
		s.mu.Unlock()
	}
	return j, err
}

func (s *progressStore) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progress...)
}

// failingRecordStore fails every record write.
type failingRecordStore struct {
	store.Store
	err error
}

func (s *failingRecordStore) CreateRecord(context.Context, model.Record) (*model.Record, error) {
	return nil, s.err
}

func (s *failingRecordStore) CreateRecords(context.Context, []model.Record) ([]model.Record, error) {
	return nil, s.err
}

func (s *failingRecordStore) UpdateRecord(context.Context, string, model.RecordUpdate) (*model.Record, error) {
	return nil, s.err
}

func newTestOrchestrator(t *testing.T, lk lookup.Lookup, an lookup.LocationAnalyzer) (*Orchestrator, *progressStore) {
	t.Helper()
	st := &progressStore{Store: store.NewMemory()}
	o := New(st, lk, an, testSettings(), WithRand(rand.New(rand.NewPCG(1, 2))))
	return o, st
}

func seedBatch(t *testing.T, st store.Store, rows []model.SourceRow, records ...model.Record) *model.UploadBatch {
	t.Helper()
	ctx := context.Background()
	b, err := st.CreateUploadBatch(ctx, model.UploadBatch{Name: "test", RawData: rows, Status: model.BatchStatusMapped, TotalRecords: len(records)})
	require.NoError(t, err)
	for i := range records {
		records[i].UploadBatchID = b.ID
		records[i].OriginalRowIndex = i
	}
	if len(records) > 0 {
		_, err = st.CreateRecords(ctx, records)
		require.NoError(t, err)
	}
	return b
}

func waitJob(t *testing.T, task *Task) *model.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := task.Wait(ctx)
	require.NoError(t, err)
	return job
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

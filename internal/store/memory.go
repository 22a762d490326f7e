package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/prospect-cli/internal/model"
)

// MemoryStore implements Store in process memory. Entities are held by
// value; nested payload pointers are treated as immutable once written.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]model.User
	batches map[string]model.UploadBatch
	jobs    map[string]model.Job
	records map[string]model.Record

	nowFunc func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]model.User),
		batches: make(map[string]model.UploadBatch),
		jobs:    make(map[string]model.Job),
		records: make(map[string]model.Record),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, u model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareUser(&u, s.nowFunc())
	s.users[u.ID] = u
	return &u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (s *MemoryStore) CreateUploadBatch(_ context.Context, b model.UploadBatch) (*model.UploadBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareBatch(&b, s.nowFunc())
	s.batches[b.ID] = b
	return copyBatch(b), nil
}

func (s *MemoryStore) GetUploadBatch(_ context.Context, id string) (*model.UploadBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, notFound("upload batch", id)
	}
	return copyBatch(b), nil
}

func (s *MemoryStore) UpdateUploadBatch(_ context.Context, id string, u model.UploadBatchUpdate) (*model.UploadBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, notFound("upload batch", id)
	}
	u.Apply(&b)
	b.UpdatedAt = s.nowFunc()
	s.batches[id] = b
	return copyBatch(b), nil
}

func (s *MemoryStore) CreateJob(_ context.Context, j model.Job) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[j.UploadBatchID]; !ok {
		return nil, notFound("upload batch", j.UploadBatchID)
	}
	prepareJob(&j, s.nowFunc())
	s.jobs[j.ID] = j
	return &j, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	return &j, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id string, u model.JobUpdate) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	if !u.Apply(&j) {
		return nil, invalidTransition(&j, u)
	}
	s.jobs[id] = j
	return &j, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, batchID string) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Job
	for _, j := range s.jobs {
		if j.UploadBatchID == batchID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateRecord(ctx context.Context, r model.Record) (*model.Record, error) {
	out, err := s.CreateRecords(ctx, []model.Record{r})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *MemoryStore) CreateRecords(_ context.Context, rs []model.Record) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	out := make([]model.Record, len(rs))
	for i, r := range rs {
		if _, ok := s.batches[r.UploadBatchID]; !ok {
			return nil, notFound("upload batch", r.UploadBatchID)
		}
		prepareRecord(&r, now)
		out[i] = r
	}
	for _, r := range out {
		s.records[r.ID] = r
	}
	return out, nil
}

func (s *MemoryStore) GetRecords(_ context.Context, batchID string) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Record{}
	for _, r := range s.records {
		if r.UploadBatchID == batchID && !r.Deleted {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, notFound("record", id)
	}
	return &r, nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, id string, u model.RecordUpdate) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, notFound("record", id)
	}
	u.Apply(&r)
	r.UpdatedAt = s.nowFunc()
	s.records[id] = r
	return &r, nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return notFound("record", id)
	}
	r.Deleted = true
	r.UpdatedAt = s.nowFunc()
	s.records[id] = r
	return nil
}

// helpers shared by all implementations

func prepareUser(u *model.User, now time.Time) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
}

func prepareBatch(b *model.UploadBatch, now time.Time) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.BatchStatusUploaded
	}
	b.CreatedAt = now
	b.UpdatedAt = now
}

func prepareJob(j *model.Job, now time.Time) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	j.Status = model.JobStatusPending
	j.Progress = 0
	j.CreatedAt = now
}

func prepareRecord(r *model.Record, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.RecordStatusPending
	}
	r.CreatedAt = now
	r.UpdatedAt = now
}

func sortRecords(rs []model.Record) {
	sort.SliceStable(rs, func(a, b int) bool {
		if rs[a].OriginalRowIndex != rs[b].OriginalRowIndex {
			return rs[a].OriginalRowIndex < rs[b].OriginalRowIndex
		}
		return rs[a].CreatedAt.Before(rs[b].CreatedAt)
	})
}

func copyBatch(b model.UploadBatch) *model.UploadBatch {
	if b.RawData != nil {
		b.RawData = append([]model.SourceRow(nil), b.RawData...)
	}
	if b.MappedData != nil {
		b.MappedData = append([]model.SourceRow(nil), b.MappedData...)
	}
	return &b
}

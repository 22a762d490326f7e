package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/lookup/mocks"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

func TestVerification_Counts(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("VerifyAddress", mock.Anything, "1 Main St, Austin, TX").
		Return(&lookup.AddressVerification{Verified: true, Confidence: 0.9, AddressVerified: true, BusinessName: "Acme"}, nil)
	lk.On("VerifyAddress", mock.Anything, "2 Oak Ave, Dallas, TX").
		Return(&lookup.AddressVerification{Verified: true, Confidence: 0.6}, nil)
	lk.On("VerifyAddress", mock.Anything, "3 Elm St, Houston, TX").
		Return(&lookup.AddressVerification{}, nil)
	lk.On("VerifyAddress", mock.Anything, "5 Pine Rd, Waco, TX").
		Return(nil, errors.New("places unavailable"))
	lk.On("Geocode", mock.Anything, mock.Anything).Return(func(_ context.Context, address string) (*model.Coordinates, error) {
		if address == "1 Main St, Austin, TX" {
			return &model.Coordinates{Lat: 30.27, Lng: -97.74}, nil
		}
		return nil, nil
	}).Maybe()

	o, st := newTestOrchestrator(t, lk, nil)
	batch := seedBatch(t, st, nil,
		model.Record{CompanyName: "Acme", Address: "1 Main St, Austin, TX"},
		model.Record{CompanyName: "Bolt", Address: "2 Oak Ave, Dallas, TX"},
		model.Record{CompanyName: "Crux", Address: "3 Elm St, Houston, TX"},
		model.Record{CompanyName: "Dyna"},
		model.Record{CompanyName: "Echo", Address: "5 Pine Rd, Waco, TX"},
	)

	task, err := o.StartJob(context.Background(), model.JobKindVerification, batch.ID, Options{})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Result)
	require.NotNil(t, job.Result.Verification)
	assert.Equal(t, model.VerificationSummary{Total: 5, Verified: 1, Updated: 1, Errors: 3, Skipped: 1}, *job.Result.Verification)

	b, err := st.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, b.Status)
	assert.Equal(t, 5, b.TotalRecords)
	assert.Equal(t, b.TotalRecords, b.ProcessedRecords)
	assert.Equal(t, 2, b.VerifiedRecords)
	assert.Equal(t, 3, b.ErrorRecords)
	assert.LessOrEqual(t, b.VerifiedRecords+b.ErrorRecords, b.ProcessedRecords)

	records, err := st.GetRecords(context.Background(), batch.ID)
	require.NoError(t, err)
	byName := map[string]model.Record{}
	for _, r := range records {
		byName[r.CompanyName] = r
	}
	assert.Equal(t, model.RecordStatusVerified, byName["Acme"].Status)
	require.NotNil(t, byName["Acme"].Verification.Enrichment.Coordinates)
	assert.InDelta(t, 30.27, byName["Acme"].Verification.Enrichment.Coordinates.Lat, 0.001)
	assert.Equal(t, model.RecordStatusUpdated, byName["Bolt"].Status)
	assert.Equal(t, model.RecordStatusError, byName["Crux"].Status)
	assert.Equal(t, model.RecordStatusError, byName["Dyna"].Status)
	assert.Equal(t, "record has no address", byName["Dyna"].Verification.Error)
	assert.Equal(t, model.RecordStatusError, byName["Echo"].Status)
	assert.Contains(t, byName["Echo"].Verification.Error, "places unavailable")
	lk.AssertNotCalled(t, "VerifyAddress", mock.Anything, "")
}

func TestVerification_ProgressPerBatch(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("VerifyAddress", mock.Anything, mock.Anything).Return(&lookup.AddressVerification{Verified: true, Confidence: 0.95}, nil)
	lk.On("Geocode", mock.Anything, mock.Anything).Return(nil, nil)

	o, st := newTestOrchestrator(t, lk, nil)
	records := make([]model.Record, 23)
	for i := range records {
		records[i] = model.Record{CompanyName: fmt.Sprintf("Co %d", i), Address: fmt.Sprintf("%d Main St, Austin, TX", i+1)}
	}
	batch := seedBatch(t, st, nil, records...)

	task, err := o.StartJob(context.Background(), model.JobKindVerification, batch.ID, Options{})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, []int{43, 86, 100, 100}, st.values())
	assert.True(t, sort.IntsAreSorted(st.values()))
	lk.AssertNumberOfCalls(t, "VerifyAddress", 23)
}

func TestVerification_StopBetweenBatches(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	lk := mocks.NewMockLookup(t)
	lk.On("VerifyAddress", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		once.Do(func() { close(entered) })
		<-release
	}).Return(&lookup.AddressVerification{Verified: true, Confidence: 0.9}, nil)
	lk.On("Geocode", mock.Anything, mock.Anything).Return(nil, nil)

	o, st := newTestOrchestrator(t, lk, nil)
	records := make([]model.Record, 15)
	for i := range records {
		records[i] = model.Record{CompanyName: fmt.Sprintf("Co %d", i), Address: fmt.Sprintf("%d Main St", i+1)}
	}
	batch := seedBatch(t, st, nil, records...)

	task, err := o.StartJob(context.Background(), model.JobKindVerification, batch.ID, Options{})
	require.NoError(t, err)

	<-entered
	stopped, err := o.StopJob(context.Background(), task.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStopped, stopped.Status)
	close(release)

	job := waitJob(t, task)
	assert.Equal(t, model.JobStatusStopped, job.Status)
	assert.Nil(t, job.Result)
	lk.AssertNumberOfCalls(t, "VerifyAddress", 10)

	got, err := st.GetRecords(context.Background(), batch.ID)
	require.NoError(t, err)
	counts := model.CountRecords(got)
	assert.Equal(t, 15, counts.Total)
	assert.Equal(t, 10, counts.Processed)

	b, err := st.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, b.ProcessedRecords)
	assert.Equal(t, model.BatchStatusCompleted, b.Status)
}

func TestVerification_StoreFailureFailsJob(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("VerifyAddress", mock.Anything, mock.Anything).Return(&lookup.AddressVerification{Verified: true, Confidence: 0.9}, nil).Maybe()
	lk.On("Geocode", mock.Anything, mock.Anything).Return(nil, nil).Maybe()

	mem := store.NewMemory()
	st := &failingRecordStore{Store: mem, err: errors.New("store unreachable")}
	o := New(st, lk, nil, testSettings())
	batch := seedBatch(t, mem, nil,
		model.Record{CompanyName: "Acme", Address: "1 Main St, Austin, TX"},
		model.Record{CompanyName: "Bolt", Address: "2 Oak Ave, Dallas, TX"},
		model.Record{CompanyName: "Dyna"},
	)

	task, err := o.StartJob(context.Background(), model.JobKindVerification, batch.ID, Options{})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "store unreachable")
	assert.Nil(t, job.Result)

	b, err := mem.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusError, b.Status)
	assert.Zero(t, b.ProcessedRecords)
}

func TestVerification_FallbackWriteFailureFailsJob(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("VerifyAddress", mock.Anything, mock.Anything).Return(nil, errors.New("places unavailable"))
	lk.On("Geocode", mock.Anything, mock.Anything).Return(nil, nil).Maybe()

	mem := store.NewMemory()
	o := New(&failingRecordStore{Store: mem, err: errors.New("disk full")}, lk, nil, testSettings())
	batch := seedBatch(t, mem, nil, model.Record{CompanyName: "Acme", Address: "1 Main St"})

	task, err := o.StartJob(context.Background(), model.JobKindVerification, batch.ID, Options{})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "fallback payload")
	assert.Contains(t, job.ErrorMessage, "disk full")
}

func TestAIProspecting_NoCitiesFails(t *testing.T) {
	an := mocks.NewMockLocationAnalyzer(t)
	an.On("Available").Return(true)
	an.On("AnalyzeForLocations", mock.Anything, mock.Anything).Return(model.EmptyLocationAnalysis(), nil)
	lk := mocks.NewMockLookup(t)

	o, st := newTestOrchestrator(t, lk, an)
	rows := []model.SourceRow{{"company": "Acme"}, {"company": "Bolt"}}
	batch := seedBatch(t, st, rows)

	task, err := o.StartJob(context.Background(), model.JobKindAIProspecting, batch.ID, Options{BusinessType: "plumber", Count: 10})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "no cities could be found")
	assert.NotNil(t, job.CompletedAt)
	an.AssertNumberOfCalls(t, "AnalyzeForLocations", 3)
	lk.AssertNotCalled(t, "SearchByType", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	b, err := st.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusError, b.Status)
}

func TestAIProspecting_DedupAndQuota(t *testing.T) {
	an := mocks.NewMockLocationAnalyzer(t)
	an.On("Available").Return(true)
	an.On("AnalyzeForLocations", mock.Anything, mock.Anything).Return(&model.LocationAnalysis{
		TargetLocations: []string{"Austin, TX", "Reno, NV", "Dallas, TX"},
		StateFilter:     "TX",
		Patterns:        []string{"texas heavy"},
	}, nil)

	lk := mocks.NewMockLookup(t)
	lk.On("SearchByType", mock.Anything, "plumber", "Austin, TX", 3).Return([]lookup.Business{
		{Name: "ACME CORP ", PlaceID: "p1"},
		{Name: "Flow Pros", PlaceID: "p2", Rating: model.Ptr(4.5)},
		{Name: "Pipe Kings", PlaceID: "p3"},
	}, nil)
	lk.On("SearchByType", mock.Anything, "plumber", "Dallas, TX", 3).Return([]lookup.Business{
		{Name: "Flow Pros", PlaceID: "p2"},
		{Name: "Drain Co", PlaceID: "p4"},
		{Name: "Valve Works", PlaceID: "p5"},
		{Name: "Extra", PlaceID: "p6"},
	}, nil)

	o, st := newTestOrchestrator(t, lk, an)
	rows := []model.SourceRow{
		{"Company": "Acme Corp", "Address": "1 Main St, Austin, TX"},
		{"Company": "Bolt", "Address": "2 Elm St, Dallas, TX"},
	}
	batch := seedBatch(t, st, rows)

	task, err := o.StartJob(context.Background(), model.JobKindAIProspecting, batch.ID, Options{BusinessType: "plumber", Count: 5})
	require.NoError(t, err)
	job := waitJob(t, task)

	require.Equal(t, model.JobStatusCompleted, job.Status, job.ErrorMessage)
	sum := job.Result.AIProspect
	require.NotNil(t, sum)
	assert.Equal(t, []string{"Austin, TX", "Dallas, TX"}, sum.TargetLocations)
	assert.Equal(t, 2, sum.CitiesSearched)
	assert.Equal(t, 7, sum.Found)
	assert.Equal(t, 5, sum.Created)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Equal(t, []string{"texas heavy"}, sum.Patterns)

	records, err := st.GetRecords(context.Background(), batch.ID)
	require.NoError(t, err)
	var names []string
	for _, r := range records {
		names = append(names, r.CompanyName)
		assert.Equal(t, model.RecordStatusNew, r.Status)
		require.NotNil(t, r.Verification)
		assert.GreaterOrEqual(t, r.Verification.Confidence, 0.8)
		assert.NotEmpty(t, r.Verification.Enrichment.PlaceID)
	}
	assert.Equal(t, []string{"Flow Pros", "Pipe Kings", "Drain Co", "Valve Works", "Extra"}, names)
	assert.Equal(t, []int{50, 100, 100}, st.values())

	b, err := st.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, b.TotalRecords)
	assert.Equal(t, model.BatchStatusCompleted, b.Status)
}

func TestAIProspecting_CitySearchErrorIsSkipped(t *testing.T) {
	an := mocks.NewMockLocationAnalyzer(t)
	an.On("Available").Return(true)
	an.On("AnalyzeForLocations", mock.Anything, mock.Anything).Return(&model.LocationAnalysis{
		TargetLocations: []string{"Austin, TX", "Dallas, TX"},
	}, nil)
	lk := mocks.NewMockLookup(t)
	lk.On("SearchByType", mock.Anything, "dentist", "Austin, TX", 1).Return(nil, errors.New("quota"))
	lk.On("SearchByType", mock.Anything, "dentist", "Dallas, TX", 1).Return([]lookup.Business{{Name: "Smile"}}, nil)

	o, st := newTestOrchestrator(t, lk, an)
	batch := seedBatch(t, st, []model.SourceRow{{"company": "Acme"}})

	task, err := o.StartJob(context.Background(), model.JobKindAIProspecting, batch.ID, Options{BusinessType: "dentist", Count: 2})
	require.NoError(t, err)
	job := waitJob(t, task)

	require.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.Result.AIProspect.Created)
	assert.Equal(t, 2, job.Result.AIProspect.CitiesSearched)
}

func TestLocationProspecting_Dentists(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("SearchNearby", mock.Anything, lookup.NearbyQuery{
		BusinessType: "dentist", Latitude: 34.05, Longitude: -118.24, RadiusMeters: 5000,
	}).Return([]lookup.Business{
		{Name: "Smile LA", Rating: model.Ptr(4.5), PlaceID: "a", Coordinates: &model.Coordinates{Lat: 34.06, Lng: -118.25}},
		{Name: "Downtown Dental", PlaceID: "b", Coordinates: &model.Coordinates{Lat: 34.04, Lng: -118.23}},
	}, nil)

	o, st := newTestOrchestrator(t, lk, nil)
	batch := seedBatch(t, st, nil)

	task, err := o.StartJob(context.Background(), model.JobKindLocationProspecting, batch.ID, Options{
		BusinessType: "dentist",
		Latitude:     model.Ptr(34.05),
		Longitude:    model.Ptr(-118.24),
		RadiusMeters: 5000,
	})
	require.NoError(t, err)
	job := waitJob(t, task)

	require.Equal(t, model.JobStatusCompleted, job.Status, job.ErrorMessage)
	assert.Equal(t, []int{20, 80, 100}, st.values())

	b, err := st.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, b.TotalRecords)
	assert.Equal(t, 2, b.VerifiedRecords)
	assert.Equal(t, 0, b.ErrorRecords)

	records, err := st.GetRecords(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, model.RecordStatusVerified, r.Status)
		require.NotNil(t, r.Verification.Enrichment.Coordinates)
	}
	assert.InDelta(t, 0.9, records[0].Verification.Confidence, 0.001)
	assert.InDelta(t, 0.7, records[1].Verification.Confidence, 0.001)
}

func TestLocationProspecting_SearchFailureFailsJob(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("SearchNearby", mock.Anything, mock.Anything).Return(nil, errors.New("circuit breaker is open"))

	o, st := newTestOrchestrator(t, lk, nil)
	batch := seedBatch(t, st, nil)
	task, err := o.StartJob(context.Background(), model.JobKindLocationProspecting, batch.ID, Options{
		BusinessType: "cafe", Latitude: model.Ptr(0.0), Longitude: model.Ptr(0.0), RadiusMeters: 100,
	})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "nearby search")
	assert.Equal(t, 20, job.Progress)
}

func TestLocationProspecting_NewBatchPerRun(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("SearchNearby", mock.Anything, mock.Anything).Return([]lookup.Business{
		{Name: "Smile LA", Coordinates: &model.Coordinates{Lat: 34.06, Lng: -118.25}},
		{Name: "Downtown Dental", Coordinates: &model.Coordinates{Lat: 34.04, Lng: -118.23}},
	}, nil)

	o, st := newTestOrchestrator(t, lk, nil)
	ctx := context.Background()
	customers := seedBatch(t, st, nil,
		model.Record{CompanyName: "Acme", Address: "1 Main St"},
		model.Record{CompanyName: "Bolt", Address: "2 Oak Ave"},
	)

	task, err := o.StartJob(ctx, model.JobKindLocationProspecting, "", Options{
		BusinessType:  "dentist",
		Latitude:      model.Ptr(34.05),
		Longitude:     model.Ptr(-118.24),
		RadiusMeters:  5000,
		SourceBatchID: customers.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, task.BatchID)
	assert.NotEqual(t, customers.ID, task.BatchID)
	job := waitJob(t, task)

	require.Equal(t, model.JobStatusCompleted, job.Status, job.ErrorMessage)
	assert.Equal(t, task.BatchID, job.UploadBatchID)

	run, err := st.GetUploadBatch(ctx, task.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "location-prospecting dentist 34.0500,-118.2400", run.Name)
	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	assert.Equal(t, 2, run.TotalRecords)
	assert.Equal(t, 2, run.VerifiedRecords)
	assert.Equal(t, 0, run.ErrorRecords)

	orig, err := st.GetUploadBatch(ctx, customers.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, orig.TotalRecords)
	recs, err := st.GetRecords(ctx, customers.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestAIProspecting_SourceBatchSeedsNewBatch(t *testing.T) {
	an := mocks.NewMockLocationAnalyzer(t)
	an.On("Available").Return(true)
	an.On("AnalyzeForLocations", mock.Anything, mock.Anything).Return(&model.LocationAnalysis{
		TargetLocations: []string{"Austin, TX"},
	}, nil)
	lk := mocks.NewMockLookup(t)
	lk.On("SearchByType", mock.Anything, "plumber", "Austin, TX", 2).Return([]lookup.Business{
		{Name: "acme corp", PlaceID: "p1"},
		{Name: "Flow Pros", PlaceID: "p2"},
	}, nil)

	o, st := newTestOrchestrator(t, lk, an)
	ctx := context.Background()
	source := seedBatch(t, st, []model.SourceRow{{"Company": "Acme Corp", "Address": "1 Main St, Austin, TX"}},
		model.Record{CompanyName: "Acme Corp", Address: "1 Main St, Austin, TX"},
	)

	task, err := o.StartJob(ctx, model.JobKindAIProspecting, "", Options{
		BusinessType:  "plumber",
		Count:         2,
		SourceBatchID: source.ID,
	})
	require.NoError(t, err)
	job := waitJob(t, task)
	require.Equal(t, model.JobStatusCompleted, job.Status, job.ErrorMessage)

	created, err := st.GetRecords(ctx, task.BatchID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Flow Pros", created[0].CompanyName)

	recs, err := st.GetRecords(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestFailAfterStopKeepsBatchCompleted(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	lk := mocks.NewMockLookup(t)
	lk.On("SearchNearby", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil, errors.New("places timeout"))

	o, st := newTestOrchestrator(t, lk, nil)
	batch := seedBatch(t, st, nil)
	task, err := o.StartJob(context.Background(), model.JobKindLocationProspecting, batch.ID, Options{
		BusinessType: "cafe", Latitude: model.Ptr(1.0), Longitude: model.Ptr(1.0), RadiusMeters: 100,
	})
	require.NoError(t, err)

	<-entered
	_, err = o.StopJob(context.Background(), task.JobID)
	require.NoError(t, err)
	close(release)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusStopped, job.Status)
	assert.Empty(t, job.ErrorMessage)
	b, err := st.GetUploadBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, b.Status)
}

func TestWorkflowPanicFailsJob(t *testing.T) {
	lk := mocks.NewMockLookup(t)
	lk.On("SearchNearby", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("provider bug") })

	o, st := newTestOrchestrator(t, lk, nil)
	batch := seedBatch(t, st, nil)
	task, err := o.StartJob(context.Background(), model.JobKindLocationProspecting, batch.ID, Options{
		BusinessType: "cafe", Latitude: model.Ptr(1.0), Longitude: model.Ptr(1.0), RadiusMeters: 100,
	})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "provider bug")
}

func TestTemplateProspecting_ExplicitLocation(t *testing.T) {
	o, st := newTestOrchestrator(t, nil, nil)
	batch := seedBatch(t, st, nil)

	task, err := o.StartJob(context.Background(), model.JobKindProspecting, batch.ID, Options{
		BusinessType: "hvac", Location: "Boise, ID", Count: 30,
	})
	require.NoError(t, err)
	job := waitJob(t, task)

	require.Equal(t, model.JobStatusCompleted, job.Status, job.ErrorMessage)
	sum := job.Result.TemplateProspect
	require.NotNil(t, sum)
	assert.Equal(t, 30, sum.Generated)
	assert.Equal(t, []string{"Boise, ID"}, sum.Locations)
	assert.Equal(t, locationsExplicit, sum.Source)
	assert.Equal(t, []int{83, 100, 100}, st.values())

	records, err := st.GetRecords(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, records, 30)
	for _, r := range records {
		assert.Equal(t, model.RecordStatusNew, r.Status)
		assert.Contains(t, r.Address, "Boise, ID")
		assert.Contains(t, r.CompanyName, "Hvac")
		assert.GreaterOrEqual(t, r.Verification.Confidence, 0.5)
		assert.LessOrEqual(t, r.Verification.Confidence, 1.0)
	}
}

func TestTemplateProspecting_StoreFailureFailsJob(t *testing.T) {
	mem := store.NewMemory()
	o := New(&failingRecordStore{Store: mem, err: errors.New("store unreachable")}, nil, nil, testSettings())
	batch := seedBatch(t, mem, nil)

	task, err := o.StartJob(context.Background(), model.JobKindProspecting, batch.ID, Options{Location: "Boise, ID", Count: 30})
	require.NoError(t, err)
	job := waitJob(t, task)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "store unreachable")
	assert.Nil(t, job.Result)
}

func TestTemplateProspecting_LocationSources(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil, nil)

	locs, src := o.templateLocations(Options{SourceRows: []model.SourceRow{
		{"address": "1 Main St, Austin, TX"},
		{"address": "2 Elm St, Austin, TX"},
		{"address": "3 Oak St, Tulsa, OK"},
	}})
	assert.Equal(t, locationsSource, src)
	assert.Equal(t, []string{"Austin, TX", "Tulsa, OK"}, locs)

	locs, src = o.templateLocations(Options{})
	assert.Equal(t, locationsFallback, src)
	assert.Len(t, locs, 8)
	assert.Equal(t, "New York, NY", locs[0])
}

func TestStartJob_Validation(t *testing.T) {
	o, st := newTestOrchestrator(t, nil, nil)
	batch := seedBatch(t, st, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		kind  model.JobKind
		batch string
		opts  Options
	}{
		{"unknown kind", "enrichment", batch.ID, Options{}},
		{"missing batch", model.JobKindVerification, "nope", Options{}},
		{"ai without type", model.JobKindAIProspecting, batch.ID, Options{SourceRows: []model.SourceRow{{"a": "b"}}}},
		{"ai without rows", model.JobKindAIProspecting, batch.ID, Options{BusinessType: "plumber"}},
		{"location without coords", model.JobKindLocationProspecting, batch.ID, Options{BusinessType: "cafe", RadiusMeters: 10}},
		{"location bad latitude", model.JobKindLocationProspecting, batch.ID, Options{BusinessType: "cafe", Latitude: model.Ptr(91.0), Longitude: model.Ptr(0.0), RadiusMeters: 10}},
		{"location bad radius", model.JobKindLocationProspecting, batch.ID, Options{BusinessType: "cafe", Latitude: model.Ptr(1.0), Longitude: model.Ptr(0.0)}},
		{"negative count", model.JobKindProspecting, batch.ID, Options{Count: -1}},
		{"missing source batch", model.JobKindAIProspecting, batch.ID, Options{BusinessType: "x", SourceBatchID: "gone"}},
		{"verification without batch", model.JobKindVerification, "", Options{}},
		{"run without source rows", model.JobKindAIProspecting, "", Options{BusinessType: "plumber"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := o.StartJob(ctx, tt.kind, tt.batch, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, task)
		})
	}

	jobs, err := st.ListJobs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRunName(t *testing.T) {
	assert.Equal(t, "prospecting hvac Boise, ID", runName(model.JobKindProspecting, Options{BusinessType: "hvac", Location: "Boise, ID"}))
	assert.Equal(t, "prospecting", runName(model.JobKindProspecting, Options{}))
}

func TestStopJob(t *testing.T) {
	o, st := newTestOrchestrator(t, nil, nil)
	ctx := context.Background()

	_, err := o.StopJob(ctx, "missing")
	assert.True(t, store.IsNotFound(err))

	batch := seedBatch(t, st, nil)
	task, err := o.StartJob(ctx, model.JobKindProspecting, batch.ID, Options{Count: 1})
	require.NoError(t, err)
	done := waitJob(t, task)
	require.Equal(t, model.JobStatusCompleted, done.Status)

	again, err := o.StopJob(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, again.Status)

	status, err := o.GetJobStatus(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, status.Status)

	require.NoError(t, o.Wait(ctx))
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.JobsConfig{
		VerificationBatchSize: 5,
		Retry:                 config.RetryConfig{MaxAttempts: 4, InitialBackoffMs: 10, Multiplier: 3},
	})
	assert.Equal(t, 5, s.VerificationBatchSize)
	assert.Equal(t, 25, s.TemplateBatchSize)
	assert.Equal(t, 3, s.ExtractionRetry.MaxAttempts)
	assert.InDelta(t, 3.0, s.ExtractionRetry.Multiplier, 0.001)
}

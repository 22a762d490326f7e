package jobs

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
)

// highConfidence separates verified records from updated ones.
const highConfidence = 0.8

// Verification sources written into the payload.
const (
	sourceLookup   = "lookup"
	sourceTemplate = "template"
	sourcePlaces   = "places_search"
	sourceNearby   = "nearby_search"
)

func (o *Orchestrator) runVerification(ctx context.Context, j *jobRun) (*model.JobResult, error) {
	records, err := o.store.GetRecords(ctx, j.job.UploadBatchID)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: load records")
	}
	total := len(records)
	j.log.Info("jobs: verifying records", zap.Int("records", total))

	_, err = ProcessBatches(ctx, records, BatchConfig[model.Record]{
		Size:       o.settings.VerificationBatchSize,
		Checkpoint: j.checkpoint,
		OnItemError: func(ctx context.Context, r model.Record, err error) error {
			if isStoreFailure(err) {
				return err
			}
			j.log.Warn("jobs: record verification failed", zap.String("record_id", r.ID), zap.Error(err))
			return o.markRecordError(ctx, r, err.Error())
		},
		OnProgress: func(ctx context.Context, processed, percent int) error {
			if _, err := o.store.UpdateUploadBatch(ctx, j.job.UploadBatchID, model.UploadBatchUpdate{
				ProcessedRecords: model.Ptr(processed),
			}); err != nil {
				return eris.Wrap(err, "jobs: update processed count")
			}
			return j.progress(ctx, percent)
		},
	}, func(ctx context.Context, r model.Record) error {
		return o.verifyRecord(ctx, r, j.log)
	})
	if err != nil {
		return nil, err
	}

	final, err := o.store.GetRecords(ctx, j.job.UploadBatchID)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: reload records")
	}
	summary := &model.VerificationSummary{Total: len(final)}
	for _, r := range final {
		switch r.Status {
		case model.RecordStatusVerified:
			summary.Verified++
		case model.RecordStatusUpdated:
			summary.Updated++
		case model.RecordStatusError:
			summary.Errors++
		}
		if strings.TrimSpace(r.Address) == "" {
			summary.Skipped++
		}
	}
	return &model.JobResult{Kind: model.JobKindVerification, Verification: summary}, nil
}

// verifyRecord looks up one record and writes its verification payload.
// Address verification and geocoding run concurrently; a geocoding failure
// only drops the coordinates.
func (o *Orchestrator) verifyRecord(ctx context.Context, r model.Record, log *zap.Logger) error {
	address := strings.TrimSpace(r.Address)
	if address == "" {
		return o.markRecordError(ctx, r, "record has no address")
	}

	var (
		v      *lookup.AddressVerification
		coords *model.Coordinates
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		v, err = o.lookup.VerifyAddress(gCtx, address)
		return err
	})
	g.Go(func() error {
		c, err := o.lookup.Geocode(gCtx, address)
		if err != nil {
			log.Warn("jobs: geocode failed", zap.String("record_id", r.ID), zap.Error(err))
			return nil
		}
		coords = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	payload := o.verificationPayload(v, coords)
	status := recordStatus(v)
	if status == model.RecordStatusError {
		payload.Error = "address could not be verified"
	}
	if _, err := o.store.UpdateRecord(ctx, r.ID, model.RecordUpdate{
		Status:       &status,
		Verification: payload,
	}); err != nil {
		return storeFailure(err, "jobs: update record %s", r.ID)
	}
	return nil
}

func recordStatus(v *lookup.AddressVerification) model.RecordStatus {
	switch {
	case v == nil || !v.Verified:
		return model.RecordStatusError
	case v.Confidence >= highConfidence:
		return model.RecordStatusVerified
	default:
		return model.RecordStatusUpdated
	}
}

func (o *Orchestrator) verificationPayload(v *lookup.AddressVerification, coords *model.Coordinates) *model.Verification {
	out := &model.Verification{
		Source:     sourceLookup,
		VerifiedAt: o.nowFunc().UTC(),
	}
	if v != nil {
		out.Confidence = v.Confidence
		out.Verified = v.Verified
		out.AddressVerified = v.AddressVerified
		out.BusinessName = v.BusinessName
		if p := v.Place; p != nil {
			out.Enrichment = model.Enrichment{
				Coordinates:    p.Coordinates,
				Rating:         p.Rating,
				ReviewCount:    p.ReviewCount,
				BusinessStatus: p.BusinessStatus,
				PlaceID:        p.PlaceID,
				Types:          p.Types,
				FormattedPhone: p.Phone,
				Website:        p.Website,
				EmployeeRange:  p.EmployeeRange,
				YearFounded:    p.YearFounded,
			}
		}
	}
	if coords != nil {
		out.Enrichment.Coordinates = coords
	}
	return out
}

// markRecordError writes the fallback payload for a record whose lookup
// failed.
func (o *Orchestrator) markRecordError(ctx context.Context, r model.Record, reason string) error {
	if _, err := o.store.UpdateRecord(ctx, r.ID, model.RecordUpdate{
		Status: model.Ptr(model.RecordStatusError),
		Verification: &model.Verification{
			Source:     sourceLookup,
			Error:      reason,
			VerifiedAt: o.nowFunc().UTC(),
		},
	}); err != nil {
		return storeFailure(err, "jobs: write fallback payload for record %s", r.ID)
	}
	return nil
}

package jobs

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
)

// defaultNearbyConfidence applies to nearby results without a rating.
const defaultNearbyConfidence = 0.7

// runLocationProspecting maps one nearby search into verified records.
func (o *Orchestrator) runLocationProspecting(opts Options) workflow {
	return func(ctx context.Context, j *jobRun) (*model.JobResult, error) {
		if err := j.progress(ctx, 20); err != nil {
			return nil, err
		}

		q := lookup.NearbyQuery{
			BusinessType: opts.BusinessType,
			Latitude:     *opts.Latitude,
			Longitude:    *opts.Longitude,
			RadiusMeters: opts.RadiusMeters,
		}
		found, err := o.lookup.SearchNearby(ctx, q)
		if err != nil {
			return nil, eris.Wrap(err, "jobs: nearby search")
		}
		if err := j.progress(ctx, 80); err != nil {
			return nil, err
		}

		existing, err := o.store.GetRecords(ctx, j.job.UploadBatchID)
		if err != nil {
			return nil, eris.Wrap(err, "jobs: load records")
		}
		records := make([]model.Record, 0, len(found))
		for i, b := range found {
			records = append(records, o.nearbyRecord(j.job.UploadBatchID, opts.BusinessType, b, len(existing)+i))
		}
		if len(records) > 0 {
			if _, err := o.store.CreateRecords(ctx, records); err != nil {
				return nil, eris.Wrap(err, "jobs: save nearby results")
			}
		}
		j.log.Info("jobs: nearby search complete", zap.Int("found", len(found)))

		return &model.JobResult{
			Kind: model.JobKindLocationProspecting,
			Location: &model.LocationSummary{
				BusinessType: opts.BusinessType,
				Latitude:     q.Latitude,
				Longitude:    q.Longitude,
				RadiusMeters: q.RadiusMeters,
				Found:        len(found),
				Created:      len(records),
			},
		}, nil
	}
}

func (o *Orchestrator) nearbyRecord(batchID, businessType string, b lookup.Business, row int) model.Record {
	confidence := defaultNearbyConfidence
	if b.Rating != nil && *b.Rating > 0 {
		confidence = math.Min(*b.Rating/5, 1)
	}
	return model.Record{
		UploadBatchID:    batchID,
		CompanyName:      strings.TrimSpace(b.Name),
		Phone:            b.Phone,
		Website:          b.Website,
		Address:          b.Address,
		Industry:         businessType,
		Status:           model.RecordStatusVerified,
		OriginalRowIndex: row,
		Verification: &model.Verification{
			Confidence:   confidence,
			Verified:     true,
			BusinessName: b.Name,
			Source:       sourceNearby,
			Enrichment: model.Enrichment{
				Coordinates:    b.Coordinates,
				Rating:         b.Rating,
				ReviewCount:    b.ReviewCount,
				BusinessStatus: b.BusinessStatus,
				PlaceID:        b.PlaceID,
				Types:          b.Types,
				FormattedPhone: b.Phone,
				Website:        b.Website,
			},
			VerifiedAt: o.nowFunc().UTC(),
		},
	}
}

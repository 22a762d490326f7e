package jobs

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
)

// discoveredConfidence is the confidence given to businesses returned by a
// places search.
const discoveredConfidence = 0.9

// errNoCities fails an ai-prospecting job whose analysis found nothing.
var errNoCities = eris.New("jobs: no cities could be found in the source data to search")

// runAIProspecting finds new businesses in the cities the location
// analysis picks out of the source rows, skipping names already present in
// the source data.
func (o *Orchestrator) runAIProspecting(opts Options) workflow {
	return func(ctx context.Context, j *jobRun) (*model.JobResult, error) {
		analysis := o.extractLocations(ctx, opts.SourceRows, j.log)
		cities := o.targetCities(analysis)
		if len(cities) == 0 {
			return nil, errNoCities
		}

		dedup, err := o.buildDedupIndex(ctx, opts)
		if err != nil {
			return nil, err
		}

		existing, err := o.store.GetRecords(ctx, j.job.UploadBatchID)
		if err != nil {
			return nil, eris.Wrap(err, "jobs: load records")
		}
		row := len(existing)

		quota := (opts.Count + len(cities) - 1) / len(cities)
		summary := &model.AIProspectSummary{
			BusinessType:    opts.BusinessType,
			TargetLocations: cities,
			Patterns:        analysis.Patterns,
			Recommendations: analysis.Recommendations,
			Insights:        analysis.LocationInsights,
		}
		j.log.Info("jobs: prospecting cities",
			zap.Strings("cities", cities),
			zap.Int("quota", quota),
			zap.Int("known_names", dedup.Len()),
		)

		seenPlaces := make(map[string]struct{})
		for i, city := range cities {
			if err := j.checkpoint(ctx); err != nil {
				return nil, err
			}
			remaining := opts.Count - summary.Created
			if remaining <= 0 {
				break
			}
			clog := j.log.With(zap.String("city", city))

			found, err := o.lookup.SearchByType(ctx, opts.BusinessType, city, quota)
			summary.CitiesSearched++
			if err != nil {
				clog.Warn("jobs: city search failed", zap.Error(err))
			} else {
				summary.Found += len(found)
				var records []model.Record
				for _, b := range found {
					if len(records) == min(quota, remaining) {
						break
					}
					if dedup.Contains(b.Name) {
						summary.Duplicates++
						continue
					}
					if b.PlaceID != "" {
						if _, dup := seenPlaces[b.PlaceID]; dup {
							summary.Duplicates++
							continue
						}
						seenPlaces[b.PlaceID] = struct{}{}
					}
					records = append(records, o.discoveredRecord(j.job.UploadBatchID, opts.BusinessType, city, b, row))
					row++
				}
				if len(records) > 0 {
					if _, err := o.store.CreateRecords(ctx, records); err != nil {
						return nil, eris.Wrapf(err, "jobs: save prospects for %s", city)
					}
				}
				summary.Created += len(records)
				clog.Info("jobs: city complete", zap.Int("found", len(found)), zap.Int("created", len(records)))
			}

			if err := j.progress(ctx, Percent(i+1, len(cities))); err != nil {
				return nil, err
			}
		}

		return &model.JobResult{Kind: model.JobKindAIProspecting, AIProspect: summary}, nil
	}
}

// targetCities applies the analysis state filter and the candidate cap. A
// filter that would drop every city is ignored.
func (o *Orchestrator) targetCities(a *model.LocationAnalysis) []string {
	cities := a.TargetLocations
	if st := strings.TrimSpace(a.StateFilter); st != "" {
		var kept []string
		for _, c := range cities {
			if cityState(c) == strings.ToUpper(st) {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			cities = kept
		}
	}
	if n := o.settings.MaxCandidateLocations; n > 0 && len(cities) > n {
		cities = cities[:n]
	}
	return cities
}

func cityState(location string) string {
	i := strings.LastIndex(location, ",")
	if i < 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(location[i+1:]))
}

// buildDedupIndex indexes company names from the source rows and from the
// records of the source batch, if one was given.
func (o *Orchestrator) buildDedupIndex(ctx context.Context, opts Options) (*DedupIndex, error) {
	names := make([]string, 0, len(opts.SourceRows))
	for _, row := range opts.SourceRows {
		names = append(names, RowCompanyName(row))
	}
	if opts.SourceBatchID != "" {
		records, err := o.store.GetRecords(ctx, opts.SourceBatchID)
		if err != nil {
			return nil, eris.Wrap(err, "jobs: load source records")
		}
		for _, r := range records {
			names = append(names, r.CompanyName)
		}
	}
	return NewDedupIndex(names), nil
}

func (o *Orchestrator) discoveredRecord(batchID, businessType, city string, b lookup.Business, row int) model.Record {
	return model.Record{
		UploadBatchID:    batchID,
		CompanyName:      strings.TrimSpace(b.Name),
		Phone:            b.Phone,
		Website:          b.Website,
		Address:          b.Address,
		Industry:         businessType,
		Status:           model.RecordStatusNew,
		OriginalRowIndex: row,
		Verification: &model.Verification{
			Confidence:   discoveredConfidence,
			Verified:     true,
			BusinessName: b.Name,
			Source:       sourcePlaces,
			Enrichment: model.Enrichment{
				Coordinates:    b.Coordinates,
				Rating:         b.Rating,
				ReviewCount:    b.ReviewCount,
				BusinessStatus: b.BusinessStatus,
				PlaceID:        b.PlaceID,
				Types:          b.Types,
				FormattedPhone: b.Phone,
				Website:        b.Website,
				TargetLocation: city,
			},
			VerifiedAt: o.nowFunc().UTC(),
		},
	}
}

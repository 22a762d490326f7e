package jobs

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Where template prospecting took its locations from.
const (
	locationsExplicit = "explicit"
	locationsSource   = "source_data"
	locationsFallback = "fallback"
)

// runTemplateProspecting synthesizes illustrative prospects from the
// template catalog. It makes no external calls and does not dedup.
func (o *Orchestrator) runTemplateProspecting(opts Options) workflow {
	return func(ctx context.Context, j *jobRun) (*model.JobResult, error) {
		locations, source := o.templateLocations(opts)
		j.log.Info("jobs: generating template prospects",
			zap.Int("count", opts.Count),
			zap.Strings("locations", locations),
			zap.String("location_source", source),
		)

		existing, err := o.store.GetRecords(ctx, j.job.UploadBatchID)
		if err != nil {
			return nil, eris.Wrap(err, "jobs: load records")
		}
		base := len(existing)

		indexes := make([]int, opts.Count)
		for i := range indexes {
			indexes[i] = base + i
		}

		var created atomic.Int64
		_, err = ProcessBatches(ctx, indexes, BatchConfig[int]{
			Size:       o.settings.TemplateBatchSize,
			Checkpoint: j.checkpoint,
			OnItemError: func(_ context.Context, i int, err error) error {
				if isStoreFailure(err) {
					return err
				}
				j.log.Warn("jobs: template record not created", zap.Int("row", i), zap.Error(err))
				return nil
			},
			OnProgress: func(ctx context.Context, _, percent int) error {
				return j.progress(ctx, percent)
			},
		}, func(ctx context.Context, i int) error {
			loc := locations[o.intn(len(locations))]
			if _, err := o.store.CreateRecord(ctx, o.templateRecord(j.job.UploadBatchID, opts.BusinessType, loc, i)); err != nil {
				return storeFailure(err, "jobs: create template record %d", i)
			}
			created.Add(1)
			return nil
		})
		if err != nil {
			return nil, err
		}

		return &model.JobResult{
			Kind: model.JobKindProspecting,
			TemplateProspect: &model.TemplateProspectSummary{
				Requested: opts.Count,
				Generated: int(created.Load()),
				Locations: locations,
				Source:    source,
			},
		}, nil
	}
}

// templateLocations picks up to MaxCandidateLocations locations: the
// explicit one, else the most common in the source rows, else the catalog
// fallback list.
func (o *Orchestrator) templateLocations(opts Options) ([]string, string) {
	limit := o.settings.MaxCandidateLocations
	if opts.Location != "" {
		return []string{opts.Location}, locationsExplicit
	}
	if ranked := lookup.RankLocations(opts.SourceRows); len(ranked) > 0 {
		out := make([]string, 0, min(limit, len(ranked)))
		for _, lc := range ranked[:min(limit, len(ranked))] {
			out = append(out, lc.Location)
		}
		return out, locationsSource
	}
	fallback := o.catalog.FallbackCities
	return append([]string(nil), fallback[:min(limit, len(fallback))]...), locationsFallback
}

func (o *Orchestrator) templateRecord(batchID, businessType, location string, row int) model.Record {
	c := o.catalog
	name := c.NamePrefixes[o.intn(len(c.NamePrefixes))]
	if businessType != "" {
		name += " " + cases.Title(language.English).String(businessType)
	}
	name += " " + c.NameSuffixes[o.intn(len(c.NameSuffixes))]
	slug := slugify(name)

	return model.Record{
		UploadBatchID:    batchID,
		CompanyName:      name,
		Email:            "info@" + slug + ".com",
		Phone:            fmt.Sprintf("(%03d) %03d-%04d", 200+o.intn(800), 200+o.intn(800), o.intn(10000)),
		Website:          "https://www." + slug + ".com",
		Address:          fmt.Sprintf("%d %s, %s", 100+o.intn(9900), c.Streets[o.intn(len(c.Streets))], location),
		Industry:         businessType,
		Status:           model.RecordStatusNew,
		OriginalRowIndex: row,
		Verification: &model.Verification{
			Confidence: math.Round(o.float(0.5, 1.0)*100) / 100,
			Source:     sourceTemplate,
			Enrichment: model.Enrichment{TargetLocation: location},
			VerifiedAt: o.nowFunc().UTC(),
		},
	}
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

var errNoLocations = eris.New("jobs: analysis returned no target locations")

// extractLocations runs location analysis under the extraction retry
// policy. It never fails: when the analyzer is unavailable, there are no
// rows, or every attempt fails or comes back without locations, the empty
// analysis is returned.
func (o *Orchestrator) extractLocations(ctx context.Context, rows []model.SourceRow, log *zap.Logger) *model.LocationAnalysis {
	if o.analyzer == nil || !o.analyzer.Available() || len(rows) == 0 {
		log.Info("jobs: location analysis skipped", zap.Int("rows", len(rows)))
		return model.EmptyLocationAnalysis()
	}
	if n := o.settings.AISampleRows; n > 0 && len(rows) > n {
		rows = rows[:n]
	}

	cfg := o.settings.ExtractionRetry
	if lookup.IsDeterministic(o.analyzer) {
		cfg.MaxAttempts = 1
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(lookup.ServiceAnthropic, "analyze_locations")
	}

	attempts := 0
	analysis, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.LocationAnalysis, error) {
		attempts++
		a, err := o.analyzer.AnalyzeForLocations(ctx, rows)
		if err != nil {
			return nil, err
		}
		if !a.Usable() {
			return nil, errNoLocations
		}
		return a, nil
	})
	if err != nil {
		log.Warn("jobs: location analysis gave up", zap.Int("attempts", attempts), zap.Error(err))
		return model.EmptyLocationAnalysis()
	}
	return analysis
}

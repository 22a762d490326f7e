package main

import (
	"context"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/jobs"
	"github.com/sells-group/prospect-cli/internal/lookup"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
	anthropicpkg "github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/geocode"
	"github.com/sells-group/prospect-cli/pkg/google"
)

// appEnv bundles the long-lived dependencies a command needs.
type appEnv struct {
	Store        store.Store
	Orchestrator *jobs.Orchestrator
	Breakers     *resilience.ServiceBreakers
}

// Close waits briefly for in-flight jobs and closes the store.
func (e *appEnv) Close() {
	if e.Orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.Orchestrator.Wait(ctx); err != nil {
			zap.L().Warn("jobs still running at shutdown", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv opens and migrates the store. withJobs also builds the lookup
// backend and the orchestrator.
func initEnv(ctx context.Context, mode string, withJobs bool) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st}
	if !withJobs {
		return env, nil
	}

	breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))
	lk := initLookup(cfg, breakers)
	analyzer := initAnalyzer(cfg, breakers)
	env.Orchestrator = jobs.New(st, lk, analyzer, jobs.SettingsFromConfig(cfg.Jobs))
	env.Breakers = breakers
	return env, nil
}

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "", "memory":
		zap.L().Warn("using in-memory store; data is lost on exit")
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(c.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

func initLookup(c *config.Config, breakers *resilience.ServiceBreakers) lookup.Lookup {
	if c.Lookup.Mode != "live" {
		zap.L().Info("using offline lookup", zap.Uint64("seed", c.Lookup.Seed))
		return lookup.NewOffline(c.Lookup.Seed)
	}

	hc := &http.Client{Timeout: time.Duration(c.Google.TimeoutSecs) * time.Second}
	places := google.NewClient(c.Google.Key,
		google.WithBaseURL(c.Google.PlacesBaseURL),
		google.WithRateLimit(c.Google.RateLimit),
		google.WithHTTPClient(hc),
	)
	geocoder := geocode.NewClient(c.Google.Key,
		geocode.WithBaseURL(c.Google.GeocodeURL),
		geocode.WithHTTPClient(hc),
		geocode.WithRateLimit(c.Google.RateLimit),
		geocode.WithCache(1024),
	)
	return lookup.NewLive(places, geocoder, breakers)
}

// initAnalyzer returns nil when the claude analyzer has no key; location
// analysis is then skipped.
func initAnalyzer(c *config.Config, breakers *resilience.ServiceBreakers) lookup.LocationAnalyzer {
	if c.Lookup.Analyzer == "pattern" {
		zap.L().Info("using pattern location analyzer")
		return lookup.PatternAnalyzer{}
	}
	if c.Anthropic.Key == "" {
		zap.L().Info("no anthropic key; location analysis disabled")
		return nil
	}
	client := anthropicpkg.NewClient(c.Anthropic.Key, option.WithMaxRetries(0))
	return lookup.NewClaudeAnalyzer(client, c.Anthropic.Model, int64(c.Anthropic.MaxTokens), c.Jobs.AISampleRows, breakers)
}

// Package geocode resolves free-form addresses and place names to
// coordinates via the Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a one-line address ("500 Congress Ave, Austin, TX"
	// or just "Austin, TX"). An unmatched address is not an error; the
	// result has Matched=false.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	Source           string // "google"
	Quality          string // "rooftop", "range", "centroid", "approximate"
	Matched          bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithBaseURL overrides the Geocoding API endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache enables an in-process cache of up to size results, matches and
// non-matches alike.
func WithCache(size int) Option {
	return func(g *geocoder) {
		g.cache = newResultCache(size)
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	googleKey  string
	limiter    *rate.Limiter
	cache      *resultCache
}

// NewClient creates a Google-backed geocoding Client.
func NewClient(googleKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    googleGeocodeURL,
		googleKey:  googleKey,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode checks the cache, then asks Google.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	key := cacheKey(address)
	if g.cache != nil {
		if r, ok := g.cache.get(key); ok {
			return r, nil
		}
	}

	result, err := g.geocodeGoogle(ctx, address)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.cache.put(key, result)
	}
	return result, nil
}

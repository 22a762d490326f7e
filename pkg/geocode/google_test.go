package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

func newTestGeocoder(srvURL string) *geocoder {
	return &geocoder{
		httpClient: http.DefaultClient,
		baseURL:    srvURL,
		googleKey:  "test-key",
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestGoogleGeocode_Rooftop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "500 Congress Ave, Austin, TX", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 30.2685, "lng": -97.7428},
					"location_type": "ROOFTOP"
				},
				"formatted_address": "500 Congress Ave, Austin, TX 78701, USA"
			}]
		}`)
	}))
	defer srv.Close()

	g := newTestGeocoder(srv.URL)
	result, err := g.geocodeGoogle(context.Background(), "500 Congress Ave, Austin, TX")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 30.2685, result.Latitude, 0.0001)
	assert.InDelta(t, -97.7428, result.Longitude, 0.0001)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Equal(t, "500 Congress Ave, Austin, TX 78701, USA", result.FormattedAddress)
}

func TestGoogleGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	result, err := newTestGeocoder(srv.URL).geocodeGoogle(context.Background(), "000 Nowhere, XX")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGoogleGeocode_EmptyAddress(t *testing.T) {
	g := newTestGeocoder("http://unused")
	result, err := g.geocodeGoogle(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGoogleGeocode_OverQueryLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "OVER_QUERY_LIMIT", "results": []}`)
	}))
	defer srv.Close()

	_, err := newTestGeocoder(srv.URL).geocodeGoogle(context.Background(), "Austin, TX")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGoogleGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestGeocoder(srv.URL).geocodeGoogle(context.Background(), "123 Main St, Test, CA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestGoogleGeocode_NoKey(t *testing.T) {
	g := &geocoder{httpClient: http.DefaultClient, baseURL: googleGeocodeURL, limiter: rate.NewLimiter(rate.Inf, 1)}

	_, err := g.geocodeGoogle(context.Background(), "123 Main St, Test, CA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestGeocode_CachesResults(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":1,"lng":2},"location_type":"APPROXIMATE"}}]}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithCache(4), WithRateLimit(1000))

	first, err := c.Geocode(context.Background(), "Austin, TX")
	require.NoError(t, err)
	second, err := c.Geocode(context.Background(), "  austin,   tx ")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Latitude, second.Latitude)
	assert.Equal(t, "approximate", second.Quality)
}

func TestResultCache_Evicts(t *testing.T) {
	c := newResultCache(2)
	c.put("a", &Result{Latitude: 1})
	c.put("b", &Result{Latitude: 2})
	c.put("c", &Result{Latitude: 3})

	_, ok := c.get("a")
	assert.False(t, ok)
	r, ok := c.get("c")
	require.True(t, ok)
	assert.InDelta(t, 3.0, r.Latitude, 0.001)
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	tests := []struct {
		locType  string
		expected string
	}{
		{"ROOFTOP", "rooftop"},
		{"RANGE_INTERPOLATED", "range"},
		{"GEOMETRIC_CENTER", "centroid"},
		{"APPROXIMATE", "approximate"},
		{"", "approximate"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, googleLocationTypeToQuality(tt.locType), "location_type=%s", tt.locType)
	}
}

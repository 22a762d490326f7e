// Package google is a minimal Google Places API (v1) client covering text
// search and nearby search.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// maxPageSize is the largest page the Places API returns.
const maxPageSize = 20

var placeFields = []string{
	"id", "displayName", "formattedAddress", "rating", "userRatingCount",
	"businessStatus", "websiteUri", "nationalPhoneNumber", "location", "types",
}

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*SearchResponse, error)
	SearchNearby(ctx context.Context, req NearbyRequest) (*SearchResponse, error)
}

// TextSearchRequest is a Places Text Search request.
type TextSearchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount,omitempty"`
	PageToken      string `json:"pageToken,omitempty"`
}

// NearbyRequest is a Places Nearby Search request restricted to a circle.
type NearbyRequest struct {
	IncludedTypes  []string
	Latitude       float64
	Longitude      float64
	RadiusMeters   float64
	MaxResultCount int
}

// SearchResponse is the response from either search endpoint.
type SearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                  string      `json:"id"`
	DisplayName         DisplayName `json:"displayName"`
	FormattedAddress    string      `json:"formattedAddress"`
	Rating              float64     `json:"rating"`
	UserRatingCount     int         `json:"userRatingCount"`
	BusinessStatus      string      `json:"businessStatus"`
	WebsiteURI          string      `json:"websiteUri"`
	NationalPhoneNumber string      `json:"nationalPhoneNumber"`
	Location            *LatLng     `json:"location,omitempty"`
	Types               []string    `json:"types"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*SearchResponse, error) {
	if req.MaxResultCount <= 0 || req.MaxResultCount > maxPageSize {
		req.MaxResultCount = maxPageSize
	}
	return c.post(ctx, "/places:searchText", req, true)
}

type nearbyBody struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

func (c *httpClient) SearchNearby(ctx context.Context, req NearbyRequest) (*SearchResponse, error) {
	body := nearbyBody{
		IncludedTypes:  req.IncludedTypes,
		MaxResultCount: req.MaxResultCount,
		LocationRestriction: locationRestriction{Circle: circle{
			Center: LatLng{Latitude: req.Latitude, Longitude: req.Longitude},
			Radius: req.RadiusMeters,
		}},
	}
	if body.MaxResultCount <= 0 || body.MaxResultCount > maxPageSize {
		body.MaxResultCount = maxPageSize
	}
	return c.post(ctx, "/places:searchNearby", body, false)
}

func (c *httpClient) post(ctx context.Context, path string, payload any, paged bool) (*SearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "google: rate limit wait")
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask(paged))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("google", resp.StatusCode, string(respBody))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}

func fieldMask(paged bool) string {
	fields := make([]string, 0, len(placeFields)+1)
	for _, f := range placeFields {
		fields = append(fields, "places."+f)
	}
	if paged {
		fields = append(fields, "nextPageToken")
	}
	return strings.Join(fields, ",")
}

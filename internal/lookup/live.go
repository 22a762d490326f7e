package lookup

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/geocode"
	"github.com/sells-group/prospect-cli/pkg/google"
)

const (
	verifiedThreshold        = 0.5
	addressVerifiedThreshold = 0.8
)

// Live implements Lookup over Google Places and Google Geocoding.
type Live struct {
	places   google.Client
	geocoder geocode.Client
	breakers *resilience.ServiceBreakers
}

// NewLive creates a Live lookup. breakers may be nil, in which case a
// default registry is used.
func NewLive(places google.Client, geocoder geocode.Client, breakers *resilience.ServiceBreakers) *Live {
	if breakers == nil {
		breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Live{places: places, geocoder: geocoder, breakers: breakers}
}

// VerifyAddress searches the address as free text and scores the best
// match by token overlap with its formatted address.
func (l *Live) VerifyAddress(ctx context.Context, address string) (*AddressVerification, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &AddressVerification{}, nil
	}

	resp, err := resilience.Call(ctx, l.breakers, ServicePlaces, func(ctx context.Context) (*google.SearchResponse, error) {
		return l.places.TextSearch(ctx, google.TextSearchRequest{TextQuery: address, MaxResultCount: 1})
	})
	if err != nil {
		return nil, eris.Wrap(err, "lookup: verify address")
	}
	if len(resp.Places) == 0 {
		return &AddressVerification{}, nil
	}

	p := resp.Places[0]
	confidence := tokenOverlap(address, p.FormattedAddress)
	return &AddressVerification{
		Verified:        confidence >= verifiedThreshold,
		Confidence:      confidence,
		AddressVerified: confidence >= addressVerifiedThreshold,
		BusinessName:    p.DisplayName.Text,
		Place:           placeDetails(p),
	}, nil
}

// Geocode resolves an address through the geocoding service.
func (l *Live) Geocode(ctx context.Context, address string) (*model.Coordinates, error) {
	res, err := resilience.Call(ctx, l.breakers, ServiceGeocode, func(ctx context.Context) (*geocode.Result, error) {
		return l.geocoder.Geocode(ctx, address)
	})
	if err != nil {
		return nil, eris.Wrap(err, "lookup: geocode")
	}
	if res == nil || !res.Matched {
		return nil, nil
	}
	return &model.Coordinates{Lat: res.Latitude, Lng: res.Longitude}, nil
}

// SearchNearby lists places of the given type inside the query circle.
func (l *Live) SearchNearby(ctx context.Context, q NearbyQuery) ([]Business, error) {
	resp, err := resilience.Call(ctx, l.breakers, ServicePlaces, func(ctx context.Context) (*google.SearchResponse, error) {
		return l.places.SearchNearby(ctx, google.NearbyRequest{
			IncludedTypes: []string{PlaceType(q.BusinessType)},
			Latitude:      q.Latitude,
			Longitude:     q.Longitude,
			RadiusMeters:  float64(q.RadiusMeters),
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "lookup: search nearby")
	}

	out := make([]Business, 0, len(resp.Places))
	for _, p := range resp.Places {
		out = append(out, toBusiness(p))
	}
	return out, nil
}

// SearchByType pages through text search results for "<type> in <location>"
// until maxResults are collected or the provider runs out of pages.
func (l *Live) SearchByType(ctx context.Context, businessType, location string, maxResults int) ([]Business, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf("%s in %s", businessType, location)
	log := zap.L().With(zap.String("query", query))

	var (
		out   []Business
		token string
	)
	for len(out) < maxResults {
		req := google.TextSearchRequest{
			TextQuery:      query,
			MaxResultCount: maxResults - len(out),
			PageToken:      token,
		}
		resp, err := resilience.Call(ctx, l.breakers, ServicePlaces, func(ctx context.Context) (*google.SearchResponse, error) {
			return l.places.TextSearch(ctx, req)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "lookup: search %q", query)
		}
		for _, p := range resp.Places {
			if len(out) == maxResults {
				break
			}
			out = append(out, toBusiness(p))
		}
		if resp.NextPageToken == "" || len(resp.Places) == 0 {
			break
		}
		token = resp.NextPageToken
	}

	log.Debug("search by type complete", zap.Int("results", len(out)))
	return out, nil
}

// PlaceType converts a free-form business type ("Auto Repair") into a
// Places type identifier ("auto_repair").
func PlaceType(businessType string) string {
	return strings.Join(strings.Fields(strings.ToLower(businessType)), "_")
}

func toBusiness(p google.Place) Business {
	b := Business{
		Name:           p.DisplayName.Text,
		Address:        p.FormattedAddress,
		Phone:          p.NationalPhoneNumber,
		Website:        p.WebsiteURI,
		BusinessStatus: p.BusinessStatus,
		PlaceID:        p.ID,
		Types:          p.Types,
	}
	if p.Rating > 0 {
		b.Rating = model.Ptr(p.Rating)
	}
	if p.UserRatingCount > 0 {
		b.ReviewCount = model.Ptr(p.UserRatingCount)
	}
	if p.Location != nil {
		b.Coordinates = &model.Coordinates{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	}
	return b
}

func placeDetails(p google.Place) *PlaceDetails {
	b := toBusiness(p)
	return &PlaceDetails{
		PlaceID:          b.PlaceID,
		FormattedAddress: b.Address,
		Phone:            b.Phone,
		Website:          b.Website,
		BusinessStatus:   b.BusinessStatus,
		Rating:           b.Rating,
		ReviewCount:      b.ReviewCount,
		Types:            b.Types,
		Coordinates:      b.Coordinates,
	}
}

// tokenOverlap returns the fraction of the input's address tokens that
// appear in the candidate.
func tokenOverlap(input, candidate string) float64 {
	want := addressTokens(input)
	if len(want) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, t := range addressTokens(candidate) {
		have[t] = struct{}{}
	}

	seen := make(map[string]struct{}, len(want))
	matched := 0
	for _, t := range want {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := have[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

func addressTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

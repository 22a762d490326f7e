// Package lookup defines the external lookups the job workflows depend on
// (address verification, geocoding, business search, AI location
// extraction) together with live and offline implementations.
package lookup

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Service names used for circuit breakers and log fields.
const (
	ServicePlaces    = "places"
	ServiceGeocode   = "geocode"
	ServiceAnthropic = "anthropic"
)

// Lookup resolves addresses and discovers businesses.
type Lookup interface {
	// VerifyAddress checks an address against a places provider. A negative
	// result is returned as Verified=false, not as an error.
	VerifyAddress(ctx context.Context, address string) (*AddressVerification, error)

	// Geocode returns the coordinates for an address, or nil when the
	// address cannot be resolved.
	Geocode(ctx context.Context, address string) (*model.Coordinates, error)

	// SearchNearby lists businesses of a type within a circle.
	SearchNearby(ctx context.Context, q NearbyQuery) ([]Business, error)

	// SearchByType lists businesses of a type in a "City, State" location.
	SearchByType(ctx context.Context, businessType, location string, maxResults int) ([]Business, error)
}

// LocationAnalyzer extracts target locations from source rows.
type LocationAnalyzer interface {
	// Available reports whether the analyzer has a usable backend.
	Available() bool
	AnalyzeForLocations(ctx context.Context, rows []model.SourceRow) (*model.LocationAnalysis, error)
}

// Deterministic is implemented by analyzers that always return the same
// analysis for the same rows. They get a single attempt.
type Deterministic interface {
	Deterministic() bool
}

// IsDeterministic reports whether a implements Deterministic and says so.
func IsDeterministic(a LocationAnalyzer) bool {
	d, ok := a.(Deterministic)
	return ok && d.Deterministic()
}

// AddressVerification is the outcome of VerifyAddress.
type AddressVerification struct {
	Verified        bool
	Confidence      float64
	AddressVerified bool
	BusinessName    string
	Place           *PlaceDetails
}

// PlaceDetails carries provider fields for a matched place.
type PlaceDetails struct {
	PlaceID          string
	FormattedAddress string
	Phone            string
	Website          string
	BusinessStatus   string
	Rating           *float64
	ReviewCount      *int
	Types            []string
	Coordinates      *model.Coordinates
	EmployeeRange    string
	YearFounded      int
}

// NearbyQuery describes a circle search.
type NearbyQuery struct {
	BusinessType string
	Latitude     float64
	Longitude    float64
	RadiusMeters int
}

// Business is one search result.
type Business struct {
	Name           string
	Address        string
	Phone          string
	Website        string
	Rating         *float64
	ReviewCount    *int
	BusinessStatus string
	PlaceID        string
	Types          []string
	Coordinates    *model.Coordinates
}

package lookup

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	offlineEmployees = []string{"1-10", "11-50", "51-200", "201-500"}
	offlineStatuses  = []string{"OPERATIONAL", "OPERATIONAL", "OPERATIONAL", "CLOSED_TEMPORARILY"}
)

// metersPerDegree approximates the length of one degree of latitude.
const metersPerDegree = 111_320.0

// Offline implements Lookup with randomized data. Results are reproducible
// for a fixed seed and call order.
type Offline struct {
	catalog *Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewOffline creates an offline lookup drawing names and streets from the
// embedded catalog. A zero seed uses the current time.
func NewOffline(seed uint64) *Offline {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Offline{
		catalog: DefaultCatalog(),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (o *Offline) float(lo, hi float64) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return lo + o.rng.Float64()*(hi-lo)
}

func (o *Offline) intn(n int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.IntN(n)
}

func (o *Offline) pick(xs []string) string {
	return xs[o.intn(len(xs))]
}

// VerifyAddress reports most addresses as found, with confidence in
// [0.5, 1.0].
func (o *Offline) VerifyAddress(ctx context.Context, address string) (*AddressVerification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(address) == "" || o.float(0, 1) < 0.15 {
		return &AddressVerification{}, nil
	}

	confidence := math.Round(o.float(0.5, 1.0)*100) / 100
	return &AddressVerification{
		Verified:        true,
		Confidence:      confidence,
		AddressVerified: confidence >= addressVerifiedThreshold,
		BusinessName:    o.businessName(),
		Place: &PlaceDetails{
			PlaceID:          o.placeID(),
			FormattedAddress: address,
			BusinessStatus:   o.pick(offlineStatuses),
			Rating:           model.Ptr(o.rating()),
			ReviewCount:      model.Ptr(o.intn(500)),
			EmployeeRange:    o.pick(offlineEmployees),
			YearFounded:      1950 + o.intn(70),
		},
	}, nil
}

// Geocode places the address somewhere in the contiguous United States.
func (o *Offline) Geocode(ctx context.Context, address string) (*model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(address) == "" {
		return nil, nil
	}
	return &model.Coordinates{Lat: o.float(25, 49), Lng: o.float(-124, -67)}, nil
}

// SearchNearby returns between 3 and 8 businesses inside the circle.
func (o *Offline) SearchNearby(ctx context.Context, q NearbyQuery) ([]Business, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := 3 + o.intn(6)
	radiusDeg := float64(q.RadiusMeters) / metersPerDegree
	out := make([]Business, 0, n)
	for range n {
		// Uniform point in the circle.
		r := radiusDeg * math.Sqrt(o.float(0, 1))
		theta := o.float(0, 2*math.Pi)
		b := o.business(q.BusinessType, "")
		b.Types = []string{PlaceType(q.BusinessType)}
		b.Coordinates = &model.Coordinates{
			Lat: q.Latitude + r*math.Sin(theta),
			Lng: q.Longitude + r*math.Cos(theta)/math.Max(math.Cos(q.Latitude*math.Pi/180), 0.01),
		}
		out = append(out, b)
	}
	return out, nil
}

// SearchByType returns up to maxResults businesses located in location.
func (o *Offline) SearchByType(ctx context.Context, businessType, location string, maxResults int) ([]Business, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		return nil, nil
	}
	out := make([]Business, 0, maxResults)
	for range maxResults {
		out = append(out, o.business(businessType, location))
	}
	return out, nil
}

func (o *Offline) business(businessType, location string) Business {
	address := fmt.Sprintf("%d %s", 100+o.intn(9900), o.pick(o.catalog.Streets))
	if location != "" {
		address += ", " + location
	}
	return Business{
		Name:           o.businessName() + " " + titleType(businessType),
		Address:        address,
		Phone:          fmt.Sprintf("(%03d) %03d-%04d", 200+o.intn(800), 200+o.intn(800), o.intn(10000)),
		Website:        fmt.Sprintf("https://www.example-%d.com", o.intn(1_000_000)),
		Rating:         model.Ptr(o.rating()),
		ReviewCount:    model.Ptr(o.intn(500)),
		BusinessStatus: "OPERATIONAL",
		PlaceID:        o.placeID(),
	}
}

func (o *Offline) businessName() string {
	return o.pick(o.catalog.NamePrefixes) + " " + o.pick(o.catalog.NameSuffixes)
}

func (o *Offline) rating() float64 {
	return math.Round(o.float(3.5, 5.0)*10) / 10
}

func (o *Offline) placeID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fmt.Sprintf("offline_%016x", o.rng.Uint64())
}

func titleType(businessType string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(businessType), " "))
}

// Package sources provides the listing connectors the scraping executor fans
// out to, plus the county tax assessor used by tax lookups.
package sources

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
)

// DataSource fetches raw listings matching criteria.
type DataSource interface {
	Name() string
	Fetch(ctx context.Context, criteria models.SearchCriteria) ([]models.RawProperty, error)
}

// Sample serves a fixed listing set after a simulated network delay.
type Sample struct {
	name     string
	latency  time.Duration
	listings []models.RawProperty
}

func NewSample(name string, latency time.Duration, listings []models.RawProperty) *Sample {
	return &Sample{name: name, latency: latency, listings: listings}
}

func (s *Sample) Name() string { return s.name }

// Fetch filters the fixture listings. It returns ctx.Err() if the context
// ends during the simulated delay.
func (s *Sample) Fetch(ctx context.Context, criteria models.SearchCriteria) ([]models.RawProperty, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out := lo.Filter(s.listings, func(p models.RawProperty, _ int) bool {
		return Matches(p, criteria)
	})
	for i := range out {
		out[i].Source = s.name
	}
	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out, nil
}

// Matches applies criteria to a raw listing using the normalized forms of
// state and property type, so "Georgia" matches "GA".
func Matches(p models.RawProperty, c models.SearchCriteria) bool {
	if c.City != "" && !strings.EqualFold(strings.TrimSpace(p.City), strings.TrimSpace(c.City)) {
		return false
	}
	if c.State != "" && normalize.NormalizeState(p.State) != normalize.NormalizeState(c.State) {
		return false
	}
	if c.PropertyType != "" && normalize.NormalizePropertyType(p.PropertyType) != normalize.NormalizePropertyType(c.PropertyType) {
		return false
	}
	if c.MinPrice > 0 && p.ListingPrice < c.MinPrice {
		return false
	}
	if c.MaxPrice > 0 && p.ListingPrice > c.MaxPrice {
		return false
	}
	return true
}

// Registry resolves sources by name.
type Registry struct {
	byName map[string]DataSource
	order  []string
}

func NewRegistry(srcs ...DataSource) *Registry {
	r := &Registry{byName: make(map[string]DataSource, len(srcs))}
	for _, s := range srcs {
		key := strings.ToLower(s.Name())
		if _, dup := r.byName[key]; !dup {
			r.order = append(r.order, key)
		}
		r.byName[key] = s
	}
	return r
}

// Names lists registered sources in registration order.
func (r *Registry) Names() []string { return slices.Clone(r.order) }

// Select returns the named sources, or all of them when names is empty.
func (r *Registry) Select(names []string) ([]DataSource, error) {
	if len(names) == 0 {
		names = r.order
	}
	keys := lo.Uniq(lo.Map(names, func(n string, _ int) string { return strings.ToLower(strings.TrimSpace(n)) }))
	out := make([]DataSource, 0, len(keys))
	for _, n := range keys {
		s, ok := r.byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown data source %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

// Defaults builds the bundled listing sources. Several listings appear in more
// than one source with small differences, as they do in real feeds.
func Defaults(latency time.Duration) *Registry {
	return NewRegistry(
		NewSample("loopnet", latency, loopnetListings),
		NewSample("crexi", latency, crexiListings),
		NewSample("costar", latency, costarListings),
	)
}

var loopnetListings = []models.RawProperty{
	{Address: "1180 West Peachtree Street NW", City: "Atlanta", State: "GA", ZipCode: "30309", PropertyType: "Office Building", ListingPrice: 18_500_000, Sqft: 92_000},
	{Address: "675 Ponce De Leon Avenue NE", City: "Atlanta", State: "GA", ZipCode: "30308", PropertyType: "Mixed Use", ListingPrice: 42_000_000, Sqft: 210_000},
	{Address: "3500 Lenox Road", City: "Atlanta", State: "Georgia", ZipCode: "30326", PropertyType: "Retail", ListingPrice: 7_250_000, Sqft: 31_000},
	{Address: "2100 Ross Avenue", City: "Dallas", State: "TX", ZipCode: "75201", PropertyType: "Office", ListingPrice: 26_000_000, Sqft: 140_000},
	{Address: "4500 Fulton Industrial Boulevard SW", City: "Atlanta", State: "GA", ZipCode: "30336", PropertyType: "Warehouse", ListingPrice: 11_400_000, Sqft: 185_000},
}

var crexiListings = []models.RawProperty{
	{Address: "1180 W Peachtree St NW", City: "Atlanta", State: "GA", ZipCode: "30309-3521", PropertyType: "office", ListingPrice: 18_450_000, Sqft: 92_000},
	{Address: "3500 Lenox Rd", City: "Atlanta", State: "GA", PropertyType: "Shopping Center", ListingPrice: 7_250_000, Sqft: 31_000},
	{Address: "880 Glenwood Avenue SE", City: "Atlanta", State: "GA", ZipCode: "30316", PropertyType: "Multifamily", ListingPrice: 9_800_000, Sqft: 64_000},
	{Address: "1601 Elm Street", City: "Dallas", State: "Texas", ZipCode: "75201", PropertyType: "Office", ListingPrice: 31_000_000, Sqft: 0},
}

var costarListings = []models.RawProperty{
	{Address: "675 Ponce de Leon Ave NE", City: "Atlanta", State: "GA", ZipCode: "30308", PropertyType: "mixed-use", ListingPrice: 41_750_000, Sqft: 210_000},
	{Address: "2100 Ross Ave", City: "Dallas", State: "TX", ZipCode: "75201", PropertyType: "Office Building", ListingPrice: 26_000_000, Sqft: 140_000},
	{Address: "Parcel 14 Hwy 78", City: "Snellville", State: "GA", PropertyType: "Land", ListingPrice: 1_200_000, Sqft: 435_600},
	{Address: "255 Courtland Street NE", City: "Atlanta", State: "GA", ZipCode: "30303", PropertyType: "Hotel", ListingPrice: 64_000_000, Sqft: 380_000},
}

package sources

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
)

// ErrParcelNotFound is returned when the assessor has no parcel for an address.
var ErrParcelNotFound = errors.New("parcel not found")

// TaxAssessor looks up the assessment of a single parcel.
type TaxAssessor interface {
	Lookup(ctx context.Context, address, city, state, zip string) (models.TaxAssessment, error)
}

// effective property tax rates by state; others use defaultTaxRate.
var stateTaxRates = map[string]float64{
	"GA": 0.0092,
	"TX": 0.0174,
	"FL": 0.0091,
	"NY": 0.0173,
	"CA": 0.0075,
	"IL": 0.0223,
	"NJ": 0.0247,
}

const defaultTaxRate = 0.011

// SampleAssessor derives a stable assessment from the normalized address so
// repeated lookups agree.
type SampleAssessor struct {
	latency time.Duration
	taxYear int
}

func NewSampleAssessor(latency time.Duration, taxYear int) *SampleAssessor {
	if taxYear == 0 {
		taxYear = time.Now().Year() - 1
	}
	return &SampleAssessor{latency: latency, taxYear: taxYear}
}

func (a *SampleAssessor) Lookup(ctx context.Context, address, city, state, zip string) (models.TaxAssessment, error) {
	normalized := normalize.NormalizeAddress(address)
	if normalized == "" {
		return models.TaxAssessment{}, fmt.Errorf("lookup %q: %w", address, ErrParcelNotFound)
	}
	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.TaxAssessment{}, ctx.Err()
		case <-timer.C:
		}
	}

	st := normalize.NormalizeState(state)
	zc := normalize.NormalizeZipCode(zip)
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join([]string{normalized, strings.ToLower(city), st, zc}, "|")))
	sum := h.Sum64()

	assessed := float64(250_000 + (sum%4_750)*1_000)
	land := math.Round(assessed * 0.3)
	rate, ok := stateTaxRates[st]
	if !ok {
		rate = defaultTaxRate
	}
	return models.TaxAssessment{
		ParcelID:         fmt.Sprintf("%s-%08d", st, sum%100_000_000),
		Address:          normalized,
		City:             strings.TrimSpace(city),
		State:            st,
		ZipCode:          zc,
		AssessedValue:    assessed,
		LandValue:        land,
		ImprovementValue: assessed - land,
		AnnualTax:        math.Round(assessed*rate*100) / 100,
		TaxYear:          a.taxYear,
	}, nil
}

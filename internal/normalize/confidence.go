package normalize

import (
	"strings"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// Confidence penalties. The weights are part of the scoring contract.
const (
	penaltyAddressMissing = 20
	penaltyAddressNoDigit = 15
	penaltyZipMissing     = 15
	penaltyCityMissing    = 10
	penaltyStateMissing   = 10
	penaltyPriceMissing   = 20
	penaltySqftMissing    = 15

	minAddressLength = 5
)

// CalculateConfidence scores the completeness and source reputation of a raw
// record on a 0..100 scale.
func CalculateConfidence(raw models.RawProperty, trust SourceTrust) int {
	score := 100

	address := strings.TrimSpace(raw.Address)
	if len(address) < minAddressLength {
		score -= penaltyAddressMissing
	}
	if !strings.ContainsAny(address, "0123456789") {
		score -= penaltyAddressNoDigit
	}
	if strings.TrimSpace(raw.ZipCode) == "" {
		score -= penaltyZipMissing
	}
	if strings.TrimSpace(raw.City) == "" {
		score -= penaltyCityMissing
	}
	if strings.TrimSpace(raw.State) == "" {
		score -= penaltyStateMissing
	}
	if raw.ListingPrice <= 0 {
		score -= penaltyPriceMissing
	}
	if raw.Sqft <= 0 {
		score -= penaltySqftMissing
	}

	score += trust.Level(raw.Source).Bonus()
	return min(max(score, 0), 100)
}

package normalize

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// Similarity weights.
const (
	weightAddress = 0.4
	weightCity    = 0.15
	weightState   = 0.1
	weightZip     = 0.05
	weightType    = 0.1
	weightSqft    = 0.1
	weightPrice   = 0.1
)

// AddressSimilarity is the Levenshtein ratio of two normalized addresses.
func AddressSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// CalculateSimilarity scores how likely two records describe the same property.
// The result is in [0, 1]. A blank city, state or property type earns no bonus
// even when both sides are blank.
func CalculateSimilarity(a, b models.NormalizedProperty) float64 {
	score := AddressSimilarity(a.NormalizedAddress, b.NormalizedAddress) * weightAddress

	if a.City != "" && strings.EqualFold(a.City, b.City) {
		score += weightCity
	}
	if a.State != "" && a.State == b.State {
		score += weightState
	}
	if a.ZipCode != "" && a.ZipCode == b.ZipCode {
		score += weightZip
	}
	if a.PropertyType != "" && a.PropertyType == b.PropertyType {
		score += weightType
	}
	score += weightSqft * (1 - relativeDifference(a.Sqft, b.Sqft))
	score += weightPrice * (1 - relativeDifference(a.ListingPrice, b.ListingPrice))

	return math.Min(math.Max(score, 0), 1)
}

// relativeDifference is |a-b| / max(a,b), or 1 when either side is unknown.
func relativeDifference(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 1
	}
	return math.Abs(a-b) / math.Max(a, b)
}

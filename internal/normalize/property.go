package normalize

import (
	"errors"
	"math"
	"strings"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// ErrNonPositiveSqft is returned when a price per square foot cannot be derived.
var ErrNonPositiveSqft = errors.New("sqft must be positive")

// Issues attached to normalized records.
const (
	IssueAddressMissing   = "address_missing"
	IssuePriceNonPositive = "price_non_positive"
	IssueSqftNonPositive  = "sqft_non_positive"
	IssueZipMissing       = "zip_missing"
	IssueStateFormat      = "state_unrecognized_format"
	IssueLowConfidence    = "low_confidence"
)

// LowConfidenceThreshold flags records scoring below it.
const LowConfidenceThreshold = 50

// blockingIssues keep a record out of persistence.
var blockingIssues = []string{IssueAddressMissing, IssuePriceNonPositive, IssueSqftNonPositive}

// PricePerSqft divides price by area, rounded to cents.
func PricePerSqft(price, sqft float64) (float64, error) {
	if sqft <= 0 || math.IsNaN(sqft) || math.IsInf(sqft, 0) {
		return 0, ErrNonPositiveSqft
	}
	return round2(price / sqft), nil
}

// NormalizeProperty converts one raw record. It never fails: records that
// cannot be fully normalized carry issues and a lower confidence instead.
func NormalizeProperty(raw models.RawProperty, trust SourceTrust) models.NormalizedProperty {
	np := models.NormalizedProperty{
		ID:                raw.ID,
		Source:            strings.ToLower(strings.TrimSpace(raw.Source)),
		NormalizedAddress: NormalizeAddress(raw.Address),
		City:              strings.Join(strings.Fields(raw.City), " "),
		State:             NormalizeState(raw.State),
		ZipCode:           NormalizeZipCode(raw.ZipCode),
		PropertyType:      NormalizePropertyType(raw.PropertyType),
		ListingPrice:      raw.ListingPrice,
		Sqft:              raw.Sqft,
		Confidence:        CalculateConfidence(raw, trust),
	}
	if pps, err := PricePerSqft(raw.ListingPrice, raw.Sqft); err == nil {
		np.PricePerSqft = pps
	}
	np.Issues = Validate(raw, np)
	return np
}

// Validate lists the data-quality issues of a normalized record.
func Validate(raw models.RawProperty, np models.NormalizedProperty) []string {
	var issues []string
	if np.NormalizedAddress == "" {
		issues = append(issues, IssueAddressMissing)
	}
	if np.ListingPrice <= 0 {
		issues = append(issues, IssuePriceNonPositive)
	}
	if np.Sqft <= 0 {
		issues = append(issues, IssueSqftNonPositive)
	}
	if strings.TrimSpace(raw.ZipCode) == "" {
		issues = append(issues, IssueZipMissing)
	}
	if !isStateCode(np.State) {
		issues = append(issues, IssueStateFormat)
	}
	if np.Confidence < LowConfidenceThreshold {
		issues = append(issues, IssueLowConfidence)
	}
	return issues
}

// Persistable reports whether a record is free of blocking issues.
func Persistable(np models.NormalizedProperty) bool {
	for _, issue := range blockingIssues {
		if np.HasIssue(issue) {
			return false
		}
	}
	return true
}

func isStateCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

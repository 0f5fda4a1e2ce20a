package models

// RawProperty is a record as produced by a data source, before normalization.
type RawProperty struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Address      string         `json:"address"`
	City         string         `json:"city"`
	State        string         `json:"state"`
	ZipCode      string         `json:"zip_code,omitempty"`
	PropertyType string         `json:"property_type"`
	ListingPrice float64        `json:"listing_price"`
	Sqft         float64        `json:"sqft"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// NormalizedProperty is the canonical form of a single raw record.
type NormalizedProperty struct {
	ID                string   `json:"id"`
	Source            string   `json:"source"`
	NormalizedAddress string   `json:"normalized_address"`
	City              string   `json:"city"`
	State             string   `json:"state"`
	ZipCode           string   `json:"zip_code"`
	PropertyType      string   `json:"property_type"`
	ListingPrice      float64  `json:"listing_price"`
	Sqft              float64  `json:"sqft"`
	PricePerSqft      float64  `json:"price_per_sqft"`
	Confidence        int      `json:"confidence"`
	DuplicateGroup    string   `json:"duplicate_group,omitempty"`
	Issues            []string `json:"issues,omitempty"`
}

// HasIssue reports whether the record was flagged with the given issue.
func (p NormalizedProperty) HasIssue(issue string) bool {
	for _, i := range p.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// BatchStatistics summarises one pipeline run.
type BatchStatistics struct {
	TotalInput        int     `json:"total_input"`
	NormalizedCount   int     `json:"normalized_count"`
	DuplicatesFound   int     `json:"duplicates_found"`
	FinalCount        int     `json:"final_count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// BatchResult is the output of processing a batch of raw records.
type BatchResult struct {
	NormalizedProperties   []NormalizedProperty `json:"normalized_properties"`
	DeduplicatedProperties []NormalizedProperty `json:"deduplicated_properties"`
	DuplicateGroups        []DuplicateGroup     `json:"duplicate_groups,omitempty"`
	Statistics             BatchStatistics      `json:"statistics"`
}

// DuplicateGroup is a cluster of records judged to be the same property.
type DuplicateGroup struct {
	ID         string               `json:"id"`
	Members    []NormalizedProperty `json:"members"`
	SurvivorID string               `json:"survivor_id"`
}

// SearchCriteria narrows what a data source returns.
type SearchCriteria struct {
	City         string  `json:"city,omitempty"`
	State        string  `json:"state,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

// TaxAssessment is what an assessor returns for a single parcel.
type TaxAssessment struct {
	ParcelID         string  `json:"parcel_id"`
	Address          string  `json:"address"`
	City             string  `json:"city"`
	State            string  `json:"state"`
	ZipCode          string  `json:"zip_code"`
	AssessedValue    float64 `json:"assessed_value"`
	LandValue        float64 `json:"land_value"`
	ImprovementValue float64 `json:"improvement_value"`
	AnnualTax        float64 `json:"annual_tax"`
	TaxYear          int     `json:"tax_year"`
}

// MarketSnapshot aggregates comparables for a market.
type MarketSnapshot struct {
	City                string  `json:"city"`
	State               string  `json:"state"`
	PropertyType        string  `json:"property_type,omitempty"`
	Comparables         int     `json:"comparables"`
	AveragePrice        float64 `json:"average_price"`
	MedianPrice         float64 `json:"median_price"`
	MinPrice            float64 `json:"min_price"`
	MaxPrice            float64 `json:"max_price"`
	AveragePricePerSqft float64 `json:"average_price_per_sqft"`
}

package normalize

import (
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// Normalizer bundles the source-trust table and dedup threshold used by the
// batch pipeline. It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	trust     SourceTrust
	threshold float64
	newID     func() string
}

// Options configures a Normalizer. Zero values select defaults.
type Options struct {
	Trust     *SourceTrust
	Threshold float64
	// NewID generates duplicate-group ids and ids for records that lack one.
	NewID func() string
}

func New(opts Options) *Normalizer {
	n := &Normalizer{
		trust:     DefaultSourceTrust(),
		threshold: DefaultDuplicateThreshold,
		newID:     uuid.NewString,
	}
	if opts.Trust != nil {
		n.trust = *opts.Trust
	}
	if opts.Threshold > 0 {
		n.threshold = opts.Threshold
	}
	if opts.NewID != nil {
		n.newID = opts.NewID
	}
	return n
}

// Threshold returns the configured duplicate threshold.
func (n *Normalizer) Threshold() float64 { return n.threshold }

// Trust returns the configured source-trust table.
func (n *Normalizer) Trust() SourceTrust { return n.trust }

// NormalizeProperty normalizes one record, assigning an id when it has none.
func (n *Normalizer) NormalizeProperty(raw models.RawProperty) models.NormalizedProperty {
	if raw.ID == "" {
		raw.ID = n.newID()
	}
	return NormalizeProperty(raw, n.trust)
}

// DeduplicateProperties collapses duplicate groups using the configured threshold.
func (n *Normalizer) DeduplicateProperties(records []models.NormalizedProperty) DedupResult {
	return DeduplicateProperties(records, n.threshold, n.newID)
}

// ProcessDataBatch normalizes every raw record and deduplicates the result.
func (n *Normalizer) ProcessDataBatch(raw []models.RawProperty) models.BatchResult {
	normalized := make([]models.NormalizedProperty, 0, len(raw))
	for _, r := range raw {
		normalized = append(normalized, n.NormalizeProperty(r))
	}

	dedup := n.DeduplicateProperties(normalized)

	avg := 0.0
	if len(dedup.Deduplicated) > 0 {
		total := lo.SumBy(dedup.Deduplicated, func(p models.NormalizedProperty) int { return p.Confidence })
		avg = round2(float64(total) / float64(len(dedup.Deduplicated)))
	}

	stats := models.BatchStatistics{
		TotalInput:        len(raw),
		NormalizedCount:   len(normalized),
		DuplicatesFound:   len(dedup.Groups),
		FinalCount:        len(dedup.Deduplicated),
		AverageConfidence: avg,
	}
	logger.WithComponent("normalize").Debug().
		Int("total_input", stats.TotalInput).
		Int("duplicates_found", stats.DuplicatesFound).
		Int("final_count", stats.FinalCount).
		Float64("average_confidence", stats.AverageConfidence).
		Msg("batch processed")

	return models.BatchResult{
		NormalizedProperties:   dedup.Tagged,
		DeduplicatedProperties: dedup.Deduplicated,
		DuplicateGroups:        dedup.Groups,
		Statistics:             stats,
	}
}

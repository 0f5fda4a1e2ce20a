package normalize

import (
	"slices"

	"github.com/samber/lo"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// DefaultDuplicateThreshold is the similarity at which two records are merged.
const DefaultDuplicateThreshold = 0.85

// FindDuplicates clusters records in a single greedy forward pass. Each
// unprocessed record seeds a group; a later record joins when it is similar
// enough to any record already in that group. The result depends on input
// order and is not a transitive closure. Singleton groups are discarded.
func FindDuplicates(records []models.NormalizedProperty, threshold float64) [][]models.NormalizedProperty {
	idxGroups := findDuplicateIndexes(records, threshold)
	groups := make([][]models.NormalizedProperty, 0, len(idxGroups))
	for _, idx := range idxGroups {
		group := make([]models.NormalizedProperty, 0, len(idx))
		for _, i := range idx {
			group = append(group, records[i])
		}
		groups = append(groups, group)
	}
	return groups
}

func findDuplicateIndexes(records []models.NormalizedProperty, threshold float64) [][]int {
	processed := make([]bool, len(records))
	var groups [][]int

	for i := range records {
		if processed[i] {
			continue
		}
		processed[i] = true
		group := []int{i}

		for j := i + 1; j < len(records); j++ {
			if processed[j] {
				continue
			}
			joined := slices.ContainsFunc(group, func(m int) bool {
				return CalculateSimilarity(records[m], records[j]) >= threshold
			})
			if joined {
				group = append(group, j)
				processed[j] = true
			}
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// DedupResult is the outcome of DeduplicateProperties.
type DedupResult struct {
	// Deduplicated holds non-duplicates in input order followed by one
	// survivor per duplicate group.
	Deduplicated []models.NormalizedProperty
	Groups       []models.DuplicateGroup
	RemovedCount int
	// Tagged is a copy of the input with DuplicateGroup set on every member.
	Tagged []models.NormalizedProperty
}

// DeduplicateProperties keeps the highest-confidence record of each duplicate
// group. On an exact confidence tie the earliest record wins.
func DeduplicateProperties(records []models.NormalizedProperty, threshold float64, newID func() string) DedupResult {
	tagged := slices.Clone(records)
	idxGroups := findDuplicateIndexes(tagged, threshold)

	inGroup := make([]bool, len(tagged))
	groups := make([]models.DuplicateGroup, 0, len(idxGroups))
	survivors := make([]models.NormalizedProperty, 0, len(idxGroups))
	for _, idx := range idxGroups {
		groupID := newID()
		members := make([]models.NormalizedProperty, 0, len(idx))
		for _, i := range idx {
			tagged[i].DuplicateGroup = groupID
			inGroup[i] = true
			members = append(members, tagged[i])
		}
		survivor := lo.MaxBy(members, func(item, best models.NormalizedProperty) bool {
			return item.Confidence > best.Confidence
		})
		groups = append(groups, models.DuplicateGroup{
			ID:         groupID,
			Members:    members,
			SurvivorID: survivor.ID,
		})
		survivors = append(survivors, survivor)
	}

	deduplicated := make([]models.NormalizedProperty, 0, len(tagged))
	for i, r := range tagged {
		if !inGroup[i] {
			deduplicated = append(deduplicated, r)
		}
	}
	deduplicated = append(deduplicated, survivors...)

	removed := lo.SumBy(groups, func(g models.DuplicateGroup) int {
		return len(g.Members) - 1
	})

	return DedupResult{
		Deduplicated: deduplicated,
		Groups:       groups,
		RemovedCount: removed,
		Tagged:       tagged,
	}
}

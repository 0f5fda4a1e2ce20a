package normalize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func normalizeAll(raw ...models.RawProperty) []models.NormalizedProperty {
	out := make([]models.NormalizedProperty, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizeProperty(r, DefaultSourceTrust()))
	}
	return out
}

func TestCalculateSimilarityIdentical(t *testing.T) {
	recs := normalizeAll(completeRecord("mls"), completeRecord("zillow"))
	assert.InDelta(t, 1.0, CalculateSimilarity(recs[0], recs[1]), 1e-9)
}

func TestCalculateSimilarityUnknownAreaContributesNothing(t *testing.T) {
	a := completeRecord("mls")
	b := completeRecord("mls")
	b.Sqft = 0
	recs := normalizeAll(a, b)
	assert.InDelta(t, 0.9, CalculateSimilarity(recs[0], recs[1]), 1e-9)
}

func TestCalculateSimilarityBlankFieldsNeverMatch(t *testing.T) {
	a := completeRecord("mls")
	a.City, a.State, a.ZipCode, a.PropertyType = "", "", "", ""
	b := a
	recs := normalizeAll(a, b)
	require.Equal(t, "00000", recs[0].ZipCode)

	// address, sqft and price, plus the zip bonus since blank zips normalize alike
	assert.InDelta(t, 0.4+0.05+0.1+0.1, CalculateSimilarity(recs[0], recs[1]), 1e-9)
}

func TestAddressSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, AddressSimilarity("", ""), 1e-9)
	assert.InDelta(t, 1-1.0/16, AddressSimilarity("123 peachtree st", "123 peachtre st"), 1e-9)
	assert.InDelta(t, 0.0, AddressSimilarity("abc", "xyz"), 1e-9)
}

func TestDeduplicateKeepsHigherConfidence(t *testing.T) {
	typo := models.RawProperty{
		ID: "typo", Source: "zillow", Address: "123 Peachtre Street", City: "Atlanta", State: "GA",
		PropertyType: "office", ListingPrice: 1_000_000, Sqft: 10_000,
	}
	clean := models.RawProperty{
		ID: "clean", Source: "mls", Address: "123 Peachtree Street", City: "Atlanta", State: "GA",
		ZipCode: "30309", PropertyType: "office", ListingPrice: 1_000_000, Sqft: 10_000,
	}
	recs := normalizeAll(typo, clean)
	require.Equal(t, 90, recs[0].Confidence)
	require.Equal(t, 100, recs[1].Confidence)

	groups := FindDuplicates(recs, DefaultDuplicateThreshold)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)

	res := DeduplicateProperties(recs, DefaultDuplicateThreshold, sequentialIDs("grp"))
	require.Len(t, res.Deduplicated, 1)
	assert.Equal(t, "clean", res.Deduplicated[0].ID)
	assert.Equal(t, "grp-1", res.Deduplicated[0].DuplicateGroup)
	assert.Equal(t, 1, res.RemovedCount)

	require.Len(t, res.Tagged, 2)
	assert.Equal(t, "grp-1", res.Tagged[0].DuplicateGroup)
	assert.Equal(t, "grp-1", res.Tagged[1].DuplicateGroup)
	assert.Empty(t, recs[0].DuplicateGroup, "input must not be mutated")
}

func TestDeduplicateTieKeepsFirstSeen(t *testing.T) {
	a := completeRecord("mls")
	a.ID = "first"
	b := completeRecord("loopnet")
	b.ID = "second"

	res := DeduplicateProperties(normalizeAll(a, b), DefaultDuplicateThreshold, sequentialIDs("grp"))
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "first", res.Groups[0].SurvivorID)
}

// chainRecords returns A~B and B~C while A and C stay below the threshold.
func chainRecords() (a, b, c models.RawProperty) {
	base := models.RawProperty{
		Address: "77 Ponce De Leon Avenue", City: "Atlanta", State: "GA",
		ZipCode: "30308", PropertyType: "retail",
	}
	a, b, c = base, base, base
	a.ID, a.ListingPrice, a.Sqft = "a", 100, 100
	b.ID, b.ListingPrice, b.Sqft = "b", 40, 40
	c.ID, c.ListingPrice, c.Sqft = "c", 16, 16
	return a, b, c
}

func TestFindDuplicatesIsOrderDependent(t *testing.T) {
	a, b, c := chainRecords()
	recs := normalizeAll(a, b, c)
	require.GreaterOrEqual(t, CalculateSimilarity(recs[0], recs[1]), DefaultDuplicateThreshold)
	require.GreaterOrEqual(t, CalculateSimilarity(recs[1], recs[2]), DefaultDuplicateThreshold)
	require.Less(t, CalculateSimilarity(recs[0], recs[2]), DefaultDuplicateThreshold)

	t.Run("chained member joins once its neighbour is in the group", func(t *testing.T) {
		groups := FindDuplicates(normalizeAll(a, b, c), DefaultDuplicateThreshold)
		require.Len(t, groups, 1)
		assert.Len(t, groups[0], 3)
	})

	t.Run("chained member scanned before its neighbour is left out", func(t *testing.T) {
		groups := FindDuplicates(normalizeAll(a, c, b), DefaultDuplicateThreshold)
		require.Len(t, groups, 1)
		ids := []string{groups[0][0].ID, groups[0][1].ID}
		assert.Equal(t, []string{"a", "b"}, ids)
	})
}

func TestFindDuplicatesDiscardsSingletons(t *testing.T) {
	a := completeRecord("mls")
	b := models.RawProperty{ID: "far", Address: "1 Ocean Drive", City: "Miami", State: "FL", ZipCode: "33139"}
	assert.Empty(t, FindDuplicates(normalizeAll(a, b), DefaultDuplicateThreshold))
	assert.Empty(t, FindDuplicates(nil, DefaultDuplicateThreshold))
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
)

type marketPayload struct {
	City         string `json:"city"`
	State        string `json:"state"`
	PropertyType string `json:"property_type"`
	Limit        int    `json:"limit"`
}

// AnalyzeMarket aggregates stored comparables for a city and state.
func (p *Processor) AnalyzeMarket(ctx context.Context, job models.Job, report queue.ReportFunc) (any, error) {
	var payload marketPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.City) == "" || strings.TrimSpace(payload.State) == "" {
		return nil, invalidPayload("city and state are required")
	}
	if p.deps.Store == nil {
		return nil, queue.Permanent(errors.New("market analysis requires a property store"))
	}

	state := normalize.NormalizeState(payload.State)
	propertyType := ""
	if payload.PropertyType != "" {
		propertyType = normalize.NormalizePropertyType(payload.PropertyType)
	}

	report(20, fmt.Sprintf("Loading comparables for %s, %s", payload.City, state), "load")
	comps, err := p.deps.Store.ListProperties(ctx, payload.City, state, propertyType, payload.Limit)
	if err != nil {
		return nil, fmt.Errorf("load comparables: %w", err)
	}

	report(60, fmt.Sprintf("Aggregating %d comparables", len(comps)), "aggregate")
	snapshot := Snapshot(comps)
	snapshot.City = strings.TrimSpace(payload.City)
	snapshot.State = state
	snapshot.PropertyType = propertyType

	report(90, "Market snapshot ready", "snapshot")
	return snapshot, nil
}

// Snapshot computes price statistics over comparables. Non-positive prices
// and price-per-sqft values are left out of the respective figures.
func Snapshot(comps []models.NormalizedProperty) models.MarketSnapshot {
	snap := models.MarketSnapshot{Comparables: len(comps)}

	prices := lo.FilterMap(comps, func(c models.NormalizedProperty, _ int) (float64, bool) {
		return c.ListingPrice, c.ListingPrice > 0
	})
	if len(prices) > 0 {
		slices.Sort(prices)
		snap.MinPrice = round2(prices[0])
		snap.MaxPrice = round2(prices[len(prices)-1])
		snap.AveragePrice = round2(lo.Sum(prices) / float64(len(prices)))
		snap.MedianPrice = round2(median(prices))
	}

	pps := lo.FilterMap(comps, func(c models.NormalizedProperty, _ int) (float64, bool) {
		return c.PricePerSqft, c.PricePerSqft > 0
	})
	if len(pps) > 0 {
		snap.AveragePricePerSqft = round2(lo.Sum(pps) / float64(len(pps)))
	}
	return snap
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/sources"
)

type taxPayload struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

// LookupTax asks the assessor for the parcel at the payload address.
func (p *Processor) LookupTax(ctx context.Context, job models.Job, report queue.ReportFunc) (any, error) {
	var payload taxPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.Address) == "" {
		return nil, invalidPayload("address is required")
	}

	report(25, "Resolving parcel", "resolve")
	if p.deps.Limiter != nil {
		if err := p.deps.Limiter.Wait(ctx, "tax_assessor"); err != nil {
			return nil, err
		}
	}
	report(50, fmt.Sprintf("Querying assessor for %s", payload.Address), "lookup")
	assessment, err := p.deps.Assessor.Lookup(ctx, payload.Address, payload.City, payload.State, payload.ZipCode)
	if err != nil {
		if errors.Is(err, sources.ErrParcelNotFound) {
			return nil, queue.Permanent(err)
		}
		return nil, fmt.Errorf("tax lookup: %w", err)
	}
	report(90, "Assessment retrieved", "done")
	return assessment, nil
}

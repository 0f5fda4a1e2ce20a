// Package worker holds the executors the queue runs for each job type.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/archive"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/sources"
)

// ErrInvalidPayload marks a payload the executor cannot use. It is never retried.
var ErrInvalidPayload = errors.New("invalid payload")

// PropertyStore is the persistence the executors need.
type PropertyStore interface {
	PropertyExists(ctx context.Context, p models.NormalizedProperty) (bool, error)
	InsertProperty(ctx context.Context, p models.NormalizedProperty) error
	ListProperties(ctx context.Context, city, state, propertyType string, limit int) ([]models.NormalizedProperty, error)
}

// RateLimiter throttles calls per source name.
type RateLimiter interface {
	Wait(ctx context.Context, source string) error
}

// Registrar is the queue's executor registration API.
type Registrar interface {
	RegisterExecutor(jobType models.JobType, exec queue.Executor)
}

// Deps are the collaborators shared by the executors. Store, Limiter and
// Archive are optional.
type Deps struct {
	Config     config.Config
	Normalizer *normalize.Normalizer
	Sources    *sources.Registry
	Assessor   sources.TaxAssessor
	Store      PropertyStore
	Limiter    RateLimiter
	Archive    *archive.Archive
}

// Processor binds executors to job types.
type Processor struct {
	deps  Deps
	image *ImageHandler
}

func NewProcessor(deps Deps) *Processor {
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(normalize.Options{Threshold: deps.Config.DuplicateThreshold})
	}
	if deps.Sources == nil {
		deps.Sources = sources.Defaults(deps.Config.SourceLatency)
	}
	if deps.Assessor == nil {
		deps.Assessor = sources.NewSampleAssessor(deps.Config.SourceLatency, 0)
	}
	if deps.Archive == nil {
		deps.Archive = archive.NewWithUploaders(&archive.LocalUploader{BaseDir: deps.Config.ArchiveDir}, nil)
	}
	return &Processor{
		deps:  deps,
		image: NewImageHandler(deps.Config, deps.Archive),
	}
}

// Register installs an executor for every job type.
func (p *Processor) Register(r Registrar) {
	r.RegisterExecutor(models.JobTypeScraping, p.Scrape)
	r.RegisterExecutor(models.JobTypeDataProcessing, p.ProcessRecords)
	r.RegisterExecutor(models.JobTypeMarketAnalysis, p.AnalyzeMarket)
	r.RegisterExecutor(models.JobTypeTaxLookup, p.LookupTax)
	r.RegisterExecutor(models.JobTypeImageProcessing, p.image.Handle)
}

// decodePayload round-trips the loosely typed payload through JSON into dst.
func decodePayload(job models.Job, dst any) error {
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return queue.Permanent(fmt.Errorf("%w: marshal: %v", ErrInvalidPayload, err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return queue.Permanent(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	return nil
}

func invalidPayload(format string, args ...any) error {
	return queue.Permanent(fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...)))
}

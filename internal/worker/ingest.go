package worker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/archive"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/sources"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/store"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/telemetry"
)

type ingestOptions struct {
	Persist     *bool  `json:"persist"`
	Archive     bool   `json:"archive"`
	Destination string `json:"destination"`
}

type scrapePayload struct {
	Criteria models.SearchCriteria `json:"criteria"`
	Sources  []string              `json:"sources"`
	ingestOptions
}

type recordsPayload struct {
	Records []models.RawProperty `json:"records"`
	ingestOptions
}

// RejectedRecord is a deduplicated record held back from persistence.
type RejectedRecord struct {
	ID     string   `json:"id"`
	Issues []string `json:"issues"`
}

// IngestionResult is the result of scraping and data_processing jobs.
type IngestionResult struct {
	Statistics      models.BatchStatistics      `json:"statistics"`
	Properties      []models.NormalizedProperty `json:"properties"`
	Persisted       int                         `json:"persisted"`
	AlreadyStored   int                         `json:"already_stored"`
	Rejected        []RejectedRecord            `json:"rejected,omitempty"`
	SourceErrors    map[string]string           `json:"source_errors,omitempty"`
	ArchiveLocation string                      `json:"archive_location,omitempty"`
}

// Scrape fetches from every requested source, then runs the ingestion pipeline.
// A failing source is recorded and skipped; the others still contribute.
func (p *Processor) Scrape(ctx context.Context, job models.Job, report queue.ReportFunc) (any, error) {
	var payload scrapePayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	srcs, err := p.deps.Sources.Select(payload.Sources)
	if err != nil {
		return nil, invalidPayload("%v", err)
	}

	report(10, fmt.Sprintf("Fetching listings from %d sources", len(srcs)), "fetch")
	raw, sourceErrs := p.fetchAll(ctx, srcs, payload.Criteria)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := p.ingest(ctx, job, raw, payload.ingestOptions, report)
	if err != nil {
		return nil, err
	}
	res.SourceErrors = sourceErrs
	return res, nil
}

// ProcessRecords runs the ingestion pipeline over records carried in the payload.
func (p *Processor) ProcessRecords(ctx context.Context, job models.Job, report queue.ReportFunc) (any, error) {
	var payload recordsPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.Records == nil {
		return nil, invalidPayload("records is required")
	}
	report(10, fmt.Sprintf("Received %d records", len(payload.Records)), "receive")
	return p.ingest(ctx, job, payload.Records, payload.ingestOptions, report)
}

func (p *Processor) fetchAll(ctx context.Context, srcs []sources.DataSource, criteria models.SearchCriteria) ([]models.RawProperty, map[string]string) {
	var (
		mu     sync.Mutex
		raw    []models.RawProperty
		failed map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range srcs {
		g.Go(func() error {
			records, err := p.fetchOne(gctx, src, criteria)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if failed == nil {
					failed = make(map[string]string)
				}
				failed[src.Name()] = err.Error()
				return nil
			}
			raw = append(raw, records...)
			return nil
		})
	}
	_ = g.Wait()

	// Fetches finish in any order; keep the batch stable for deduplication.
	slices.SortStableFunc(raw, func(a, b models.RawProperty) int {
		return cmp.Compare(sourceRank(srcs, a.Source), sourceRank(srcs, b.Source))
	})
	return raw, failed
}

func (p *Processor) fetchOne(ctx context.Context, src sources.DataSource, criteria models.SearchCriteria) ([]models.RawProperty, error) {
	log := logger.WithComponent("ingest")
	if p.deps.Limiter != nil {
		if err := p.deps.Limiter.Wait(ctx, src.Name()); err != nil {
			telemetry.SourceErrors.WithLabelValues(src.Name()).Inc()
			return nil, err
		}
	}
	records, err := src.Fetch(ctx, criteria)
	if err != nil {
		telemetry.SourceErrors.WithLabelValues(src.Name()).Inc()
		log.Warn().Err(err).Str("source", src.Name()).Msg("source fetch failed; skipping")
		return nil, err
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = sourceRecordID(src.Name(), records[i])
		}
	}
	log.Debug().Str("source", src.Name()).Int("records", len(records)).Msg("source fetched")
	return records, nil
}

// sourceRecordID names a listing by its source and location key, so the same
// listing keeps its id across runs whatever the search criteria were.
func sourceRecordID(source string, raw models.RawProperty) string {
	key := strings.Join([]string{
		normalize.NormalizeAddress(raw.Address),
		strings.ToLower(strings.Join(strings.Fields(raw.City), " ")),
		normalize.NormalizeState(raw.State),
		normalize.NormalizeZipCode(raw.ZipCode),
	}, "|")
	return source + "-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func sourceRank(srcs []sources.DataSource, name string) int {
	for i, s := range srcs {
		if s.Name() == name {
			return i
		}
	}
	return len(srcs)
}

// ingest normalizes and deduplicates raw, persists what it can and archives
// the result when asked.
func (p *Processor) ingest(ctx context.Context, job models.Job, raw []models.RawProperty, opts ingestOptions, report queue.ReportFunc) (IngestionResult, error) {
	log := logger.WithJobID(job.ID)

	report(40, fmt.Sprintf("Normalizing %d records", len(raw)), "normalize")
	batch := p.deps.Normalizer.ProcessDataBatch(raw)
	telemetry.RecordsProcessed.Add(float64(len(raw)))
	telemetry.DuplicatesFound.Add(float64(batch.Statistics.DuplicatesFound))

	res := IngestionResult{
		Statistics: batch.Statistics,
		Properties: batch.DeduplicatedProperties,
	}

	persist := opts.Persist == nil || *opts.Persist
	if persist && p.deps.Store != nil {
		report(70, fmt.Sprintf("Persisting %d properties", len(batch.DeduplicatedProperties)), "persist")
		if err := p.persist(ctx, batch.DeduplicatedProperties, &res); err != nil {
			return IngestionResult{}, err
		}
	} else {
		for _, prop := range batch.DeduplicatedProperties {
			if !normalize.Persistable(prop) {
				res.Rejected = append(res.Rejected, RejectedRecord{ID: prop.ID, Issues: prop.Issues})
			}
		}
	}

	if opts.Archive {
		report(90, "Archiving batch result", "archive")
		loc, err := p.deps.Archive.PutJSON(ctx, opts.Destination, fmt.Sprintf("batches/%s.json", job.ID), batch)
		if err != nil {
			if errors.Is(err, archive.ErrS3NotConfigured) {
				return IngestionResult{}, queue.Permanent(err)
			}
			return IngestionResult{}, fmt.Errorf("archive batch: %w", err)
		}
		res.ArchiveLocation = loc
	}

	report(95, "Ingestion complete", "complete")
	log.Info().
		Int("final_count", res.Statistics.FinalCount).
		Int("persisted", res.Persisted).
		Int("already_stored", res.AlreadyStored).
		Int("rejected", len(res.Rejected)).
		Msg("ingestion finished")
	return res, nil
}

// persist inserts each persistable record unless its location key is
// already stored from an earlier run.
func (p *Processor) persist(ctx context.Context, props []models.NormalizedProperty, res *IngestionResult) error {
	for _, prop := range props {
		if !normalize.Persistable(prop) {
			res.Rejected = append(res.Rejected, RejectedRecord{ID: prop.ID, Issues: prop.Issues})
			telemetry.RecordsRejected.Inc()
			continue
		}
		exists, err := p.deps.Store.PropertyExists(ctx, prop)
		if err != nil {
			return fmt.Errorf("check %s: %w", prop.ID, err)
		}
		if exists {
			res.AlreadyStored++
			continue
		}
		if err := p.deps.Store.InsertProperty(ctx, prop); err != nil {
			if errors.Is(err, store.ErrPropertyExists) {
				res.AlreadyStored++
				continue
			}
			return fmt.Errorf("insert %s: %w", prop.ID, err)
		}
		res.Persisted++
		telemetry.RecordsPersisted.Inc()
	}
	return nil
}

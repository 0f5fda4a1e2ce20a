package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/api"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/archive"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/events"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/journal"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/ratelimit"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/store"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/telemetry"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	scrapeEvery time.Duration
	noStore     bool
	noRedis     bool
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue, its executors and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.scrapeEvery, "scrape-every", 0, "enqueue a scraping job over all sources at this interval (0 disables)")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "run without Postgres; nothing is persisted")
	cmd.Flags().BoolVar(&opts.noRedis, "no-redis", false, "run without Redis; disables rate limiting and the job journal")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, opts serveOptions) error {
	log := logger.WithComponent("serve")

	normalizer, err := newNormalizer(cfg)
	if err != nil {
		return err
	}
	arch, err := archive.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}

	var (
		observers  []queue.Observer
		workerDeps = worker.Deps{Config: cfg, Normalizer: normalizer, Archive: arch}
		apiDeps    = api.Deps{Normalizer: normalizer}
	)

	if !opts.noStore {
		st, err := store.New(ctx, cfg.PostgresDSN, store.Options{})
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		observers = append(observers, st)
		workerDeps.Store = st
		apiDeps.Audit = st
		apiDeps.Properties = st
	}

	if !opts.noRedis {
		client := journal.NewClient(cfg)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		j := journal.New(client, cfg.DLQName, 0)
		observers = append(observers, j)
		apiDeps.DLQ = j

		limiter := ratelimit.NewTokenBucket(client, cfg.SourceRateCapacity, cfg.SourceRateRefillPerSec, time.Hour)
		workerDeps.Limiter = limiter
		apiDeps.Limiter = limiter
	}

	var nc *events.NATSPublisher
	if cfg.NATSURL != "" {
		nc, err = events.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer nc.Close()
		observers = append(observers, nc)
	}

	q := queue.New(queue.Options{
		MaxConcurrent:      cfg.MaxConcurrentJobs,
		DefaultMaxAttempts: cfg.DefaultMaxAttempts,
		DefaultPriority:    cfg.DefaultPriority,
		PollInterval:       cfg.SchedulerPollInterval,
		Backoff:            queue.LinearBackoff(cfg.RetryBaseDelay),
		JobTimeout:         cfg.JobTimeout,
		Observers:          observers,
	})
	worker.NewProcessor(workerDeps).Register(q)

	if nc != nil {
		if err := nc.SubscribeSubmissions(q); err != nil {
			return err
		}
	}

	if opts.scrapeEvery > 0 {
		rec, err := q.ScheduleRecurringJob(models.JobTypeScraping, map[string]any{}, opts.scrapeEvery)
		if err != nil {
			return err
		}
		defer rec.Stop()
		log.Info().Dur("interval", opts.scrapeEvery).Msg("recurring scrape scheduled")
	}

	apiDeps.Queue = q
	apiDeps.Progress = events.NewHub(q)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.New(cfg, apiDeps).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := q.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	for _, srv := range []*http.Server{httpServer, metricsServer} {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = metricsServer.Shutdown(shutdownCtx)
		return nil
	})

	log.Info().
		Int("max_concurrent", cfg.MaxConcurrentJobs).
		Int("observers", len(observers)).
		Msg("propertyd started")
	err = g.Wait()
	log.Info().Msg("propertyd stopped")
	return err
}

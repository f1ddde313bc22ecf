// Package server builds the application graph from configuration and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/analysis"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/api"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/clock/system"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/config"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/dispatcher"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/extract"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/stock-sentiment-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/stock-sentiment-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/hash/sha256"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/id/uuid"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/pipeline"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/stock-sentiment-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/stock-sentiment-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/stock-sentiment-crawler/internal/queue/memory"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/sentiment"
	gcsstorage "github.com/JakeFAU/stock-sentiment-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/stock-sentiment-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/stock-sentiment-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/stock-sentiment-crawler/internal/storage/postgres"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/telemetry"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	orchestrator *pipeline.Orchestrator
	analyzer     *pipeline.Analyzer
	reports      *pipeline.Reports

	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queue     *queueMemory.Queue

	// dispatched is closed once the workers started by Run have returned.
	dispatched chan struct{}

	headless        *headlessfetcher.Fetcher
	pool            *pgxpool.Pool
	storage         *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	tracer          *sdktrace.TracerProvider
}

// Crawler returns the crawl workflow.
func (a *App) Crawler() *pipeline.Orchestrator { return a.orchestrator }

// Analyzer returns the analysis workflow.
func (a *App) Analyzer() *pipeline.Analyzer { return a.analyzer }

// Reports returns the report collection workflow.
func (a *App) Reports() *pipeline.Reports { return a.reports }

// Handler exposes the API router.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves the API and the job workers until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatched := make(chan struct{})
	a.dispatched = dispatched
	go func() {
		defer close(dispatched)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	// Close must not tear down clients a running job still uses.
	select {
	case <-dispatched:
		a.logger.Info("dispatcher stopped")
	case <-shutdownCtx.Done():
		a.logger.Warn("dispatcher did not stop before shutdown deadline")
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client the App opened. It is safe to call once after Run returns.
func (a *App) Close(ctx context.Context) {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

// Build creates the application's dependencies. On error, anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Crawler.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.Database.DSN != ""),
	)

	if cfg.Tracing.Enabled {
		app.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Options{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
	}

	clock, err := system.NewIn(cfg.Crawler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clock init failed: %w", err)
	}
	pages, err := setupFetcher(app)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.New(cfg.Extractor.Mode, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	records, documents, ready, err := setupDatabase(ctx, app)
	if err != nil {
		return nil, err
	}
	scorer := sentiment.NewClient(sentiment.ClientConfig{
		Endpoint: cfg.Sentiment.Endpoint,
		Timeout:  time.Duration(cfg.Sentiment.TimeoutSeconds) * time.Second,
	})
	if !scorer.Available() {
		logger.Warn("no sentiment endpoint configured, unscored records default to neutral")
	}

	deps := pipeline.Deps{
		Fetcher:   pages,
		Extractor: extractor,
		Records:   records,
		Documents: documents,
		Blobs:     blobs,
		Scorer:    scorer,
		Aggregator: analysis.New(analysis.Config{
			WordCloudSize: cfg.Analysis.WordCloudSize,
			Seed:          cfg.Analysis.Seed,
		}),
		Hasher: sha256.New(),
		IDs:    uuid.NewUUIDGenerator(),
		Clock:  clock,
		Logger: logger,
	}
	pcfg := cfg.Pipeline()
	app.orchestrator = pipeline.NewOrchestrator(pcfg, deps)
	app.analyzer = pipeline.NewAnalyzer(pcfg, deps, cfg.Sentiment.BatchSize)
	app.reports = pipeline.NewReports(pcfg, deps)

	publisher, topic, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	jobStore := memoryStorage.NewJobStore(
		memoryStorage.WithClock(clock),
		memoryStorage.WithRetention(time.Duration(cfg.Crawler.JobRetentionMinutes)*time.Minute),
	)
	app.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	cancels := worker.NewCancels()
	workerCfg := worker.Config{Topic: topic, JobTimeout: cfg.JobTimeout()}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			jobStore,
			app.orchestrator,
			publisher,
			clock,
			cancels,
			workerCfg,
			logger.With(zap.Int("index", i)),
		))
	}
	app.dispatch = dispatcher.New(app.queue, workers, dispatcher.Options{
		Jobs:    jobStore,
		IDs:     deps.IDs,
		Clock:   clock,
		Cancels: cancels,
		Logger:  logger,
	})
	logger.Info("worker pool ready",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", cfg.Crawler.QueueDepth),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
		zap.String("topic", topic),
	)

	app.apiServer = api.NewServer(api.Services{
		Crawler:  app.orchestrator,
		Analyzer: app.analyzer,
		Reports:  app.reports,
		Jobs:     app.dispatch,
		JobStore: jobStore,
		Ready:    ready,
	}, *cfg, logger)

	return app, nil
}

func setupFetcher(app *App) (*fetcher.RateLimited, error) {
	cfg := app.cfg
	// Report PDFs always go over plain HTTP; a browser tab cannot hand back the file.
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.RequestTimeout(),
	})
	var pages crawler.Fetcher = plain
	if cfg.Crawler.Backend == config.BackendHeadless {
		h, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			WaitSelector:      cfg.Headless.WaitSelector,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		app.headless = h
		pages = h
		app.logger.Info("using headless transport for pages", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	} else {
		app.logger.Info("using colly transport", zap.String("user_agent", cfg.Crawler.UserAgent))
	}

	var limiter crawler.Limiter
	if cfg.RateLimit.Enabled {
		hosts := make(map[string]ratelimit.HostRate, len(cfg.RateLimit.Hosts))
		for _, h := range cfg.RateLimit.Hosts {
			hosts[h.Host] = ratelimit.HostRate{RPS: h.RPS, Burst: h.Burst}
		}
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
			Hosts:        hosts,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
			zap.Int("host_overrides", len(hosts)),
		)
	}

	return fetcher.New(pages, fetcher.Config{
		UserAgent:  cfg.Crawler.UserAgent,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.Crawler.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}, fetcher.Options{Limiter: limiter, Logger: app.logger, Binary: plain}), nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.StorageGCS:
		var key []byte
		if cfg.PrivateKeyFile != "" {
			var err error
			key, err = os.ReadFile(cfg.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("read storage.private_key_file: %w", err)
			}
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:         cfg.Bucket,
			GoogleAccessID: cfg.GoogleAccessID,
			PrivateKey:     key,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Bucket))
		return blobs, nil
	case config.StorageLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupDatabase(
	ctx context.Context,
	app *App,
) (crawler.RecordStore, crawler.DocumentIndex, func(context.Context) error, error) {
	cfg := app.cfg.Database
	if cfg.DSN == "" {
		app.logger.Warn("no database DSN configured, using in-memory record and document stores")
		return memoryStorage.NewRecordStore(), memoryStorage.NewDocumentIndex(), nil, nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.PoolConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, nil, nil, err
	}
	app.pool = pool
	records, err := pgstore.NewRecordStore(pool, pgstore.RecordStoreConfig{
		PostsTable: cfg.PostsTable,
		NewsTable:  cfg.NewsTable,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("record store init failed: %w", err)
	}
	documents, err := pgstore.NewDocumentStore(pool, cfg.DocumentsTable)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("document store init failed: %w", err)
	}
	app.logger.Info("postgres stores initialized",
		zap.String("posts_table", cfg.PostsTable),
		zap.String("news_table", cfg.NewsTable),
		zap.String("documents_table", cfg.DocumentsTable),
	)
	return records, documents, pool.Ping, nil
}

// setupPublisher returns the completion publisher and the topic workers publish to.
// Without Pub/Sub, events are kept in memory under the event name.
func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, string, error) {
	cfg := app.cfg.PubSub
	if cfg.TopicName == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), worker.EventCrawlCompleted, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	publisher, err := gcppublisher.NewFromClient(client, cfg.TopicName)
	if err != nil {
		return nil, "", fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubsubPublisher = publisher
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return publisher, cfg.TopicName, nil
}

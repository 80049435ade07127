package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	invoicehandler "invoicevault/internal/invoice/handler"
	"invoicevault/internal/invoice/lock"
	invoicemetrics "invoicevault/internal/invoice/metrics"
	"invoicevault/internal/invoice/project"
	"invoicevault/internal/invoice/service"
	"invoicevault/internal/invoice/storage/blob"
	"invoicevault/internal/invoice/storage/drive"
	"invoicevault/internal/invoice/store"
	"invoicevault/internal/invoice/validation"
	"invoicevault/internal/outbox"
	"invoicevault/internal/platform/config"
	"invoicevault/internal/platform/httpserver"
	"invoicevault/internal/platform/jwtauth"
	"invoicevault/internal/platform/logger"
	platformmetrics "invoicevault/internal/platform/metrics"
	"invoicevault/internal/platform/postgres"
	platformredis "invoicevault/internal/platform/redis"
	"invoicevault/pkg/platform/circuit"
	"invoicevault/pkg/platform/tx"
)

const (
	shutdownTimeout = 15 * time.Second
	folderCacheTTL  = 24 * time.Hour
	topicPartitions = 3
	topicReplicas   = 1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// process lifecycle small. Business logic lives in internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "invoicevault: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	blobs, err := blob.NewMinio(blob.Config{
		Endpoint:      cfg.Blob.Endpoint,
		AccessKey:     cfg.Blob.AccessKey,
		SecretKey:     cfg.Blob.SecretKey,
		Bucket:        cfg.Blob.Bucket,
		UseSSL:        cfg.Blob.UseSSL,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
	})
	if err != nil {
		return err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return err
	}

	runner := tx.NewSQLRunner(db)
	outboxStore := outbox.NewPostgres(db)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(invoicemetrics.New()),
		service.WithTracer(otel.Tracer("invoicevault/invoice")),
		service.WithMatcher(project.SubstringMatcher{}),
		service.WithOutbox(outboxStore, cfg.Kafka.Topic),
	}
	if redisClient != nil {
		opts = append(opts, service.WithLocker(lock.NewRedis(redisClient.Client, cfg.LockTTL)))
	} else {
		log.Info("redis not configured; using in-process submission lock")
		opts = append(opts, service.WithLocker(lock.NewMemory(cfg.LockTTL)))
	}
	if cfg.Drive.Enabled() {
		docs, err := newDocumentStore(ctx, cfg, redisClient, log)
		if err != nil {
			return err
		}
		breaker := circuit.New("secondary-storage",
			circuit.WithFailureThreshold(cfg.Secondary.BreakerFailures),
			circuit.WithSuccessThreshold(cfg.Secondary.BreakerSuccesses),
		)
		opts = append(opts, service.WithDocumentStore(docs, breaker))
	} else {
		log.Info("secondary storage disabled; artifacts are kept in the primary tier only")
	}

	svc := service.New(
		store.NewPostgres(db),
		runner,
		validation.New(cfg.Invoice.ExpectedReceiverRFC),
		blobs,
		opts...,
	)

	deps := routerDeps{
		logger:      log,
		invoices:    invoicehandler.New(svc, log, cfg.Server.MaxBodyBytes),
		httpMetrics: platformmetrics.NewWith(prometheus.DefaultRegisterer),
		readiness: []readinessCheck{
			{name: "postgres", check: db.PingContext},
			{name: "blob", check: blobs.Health},
		},
	}
	if redisClient != nil {
		deps.readiness = append(deps.readiness, readinessCheck{name: "redis", check: redisClient.Health})
	}
	if cfg.Auth.Enabled() {
		deps.auth = jwtauth.NewAdapter(jwtauth.NewValidator(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience))
	} else {
		log.Warn("JWT_SIGNING_KEY not set; invoice endpoints are unauthenticated")
	}

	var worker *outbox.Worker
	if cfg.Kafka.Enabled() {
		client, err := outbox.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := outbox.EnsureTopic(ctx, client, cfg.Kafka.Topic, topicPartitions, topicReplicas); err != nil {
			return err
		}
		worker = outbox.NewWorker(outboxStore, runner, outbox.NewKafkaPublisher(client),
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics(prometheus.DefaultRegisterer)),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
		)
	} else {
		log.Info("kafka not configured; outbox events are stored but not published")
	}

	srv := httpserver.New(cfg.Server.Addr, newRouter(deps))
	g, gctx := errgroup.WithContext(ctx)
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}

	g.Go(func() error {
		log.Info("starting invoicevault", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("http server stopped")
		return nil
	})

	return g.Wait()
}

// newDocumentStore builds the secondary tier: a Drive client with bounded
// retries, folder resolution under the configured root, and a Redis folder
// cache when Redis is available.
func newDocumentStore(ctx context.Context, cfg config.Config, redisClient *platformredis.Client, log *slog.Logger) (*drive.Store, error) {
	google, err := drive.NewGoogleClient(ctx, cfg.Drive.CredentialsFile)
	if err != nil {
		return nil, err
	}
	client := drive.NewRetryingClient(google, cfg.Secondary.RetryAttempts, cfg.Secondary.RetryInitialInterval)

	var cache drive.FolderCache
	if redisClient != nil {
		cache = drive.NewRedisFolderCache(redisClient.Client, folderCacheTTL)
	}
	resolver := drive.NewFolderResolver(client, cfg.Drive.RootFolderID, cache, log,
		drive.WithRetry(cfg.Secondary.RetryAttempts, cfg.Secondary.RetryInitialInterval))
	return drive.NewStore(client, resolver), nil
}

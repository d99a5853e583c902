// Command server runs the health telemetry ingest and query service:
// it applies schema migrations, wires the auth resolver, rate
// limiter, payload processor, batch executor, background job worker,
// and query engine together, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"go.healthexport.dev/ingest/httpserver"
	"go.healthexport.dev/ingest/internal/audit"
	"go.healthexport.dev/ingest/internal/auth"
	"go.healthexport.dev/ingest/internal/batch"
	"go.healthexport.dev/ingest/internal/cache"
	"go.healthexport.dev/ingest/internal/config"
	"go.healthexport.dev/ingest/internal/httpapi"
	"go.healthexport.dev/ingest/internal/ingest"
	"go.healthexport.dev/ingest/internal/jobs"
	"go.healthexport.dev/ingest/internal/payload"
	"go.healthexport.dev/ingest/internal/query"
	"go.healthexport.dev/ingest/internal/timeout"
	"go.healthexport.dev/ingest/internal/version"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/migrations"
	"go.healthexport.dev/ingest/migrator"
	"go.healthexport.dev/ingest/pg"
	"go.healthexport.dev/ingest/ratelimit"
	"go.healthexport.dev/ingest/unit"
)

type serviceConfig struct {
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	DatabaseURL            string `json:"database-url"`
	RedisURL               string `json:"redis-url"`
	RateLimitPerHour       int    `json:"rate-limit-per-hour"`
	RateLimitUseUserBased  bool   `json:"rate-limit-use-user-based"`
	MaxProcessingSeconds   int    `json:"max-processing-seconds"`
	BackgroundJobThreshold int    `json:"background-job-threshold"`
	JobWebhookURL          string `json:"job-webhook-url"`
	PoolSize               int    `json:"pool-size"`
}

func configFromEnv() serviceConfig {
	return serviceConfig{
		Host:                   envString("SERVER_HOST", "0.0.0.0"),
		Port:                   envInt("SERVER_PORT", 8080),
		DatabaseURL:            envString("DATABASE_URL", "postgres://postgres@localhost:5432/postgres"),
		RedisURL:               os.Getenv("REDIS_URL"),
		RateLimitPerHour:       envInt("RATE_LIMIT_REQUESTS_PER_HOUR", 3600),
		RateLimitUseUserBased:  os.Getenv("RATE_LIMIT_USE_USER_BASED") == "true",
		MaxProcessingSeconds:   envInt("MAX_PROCESSING_SECONDS", 30),
		BackgroundJobThreshold: envInt("BACKGROUND_JOB_THRESHOLD", 10_000),
		JobWebhookURL:          os.Getenv("JOB_WEBHOOK_URL"),
		PoolSize:               envInt("DATABASE_POOL_SIZE", 10),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

type service struct {
	config serviceConfig
	logger *log.Logger
}

func (s *service) GetConfiguration() any {
	return &s.config
}

func (s *service) Run(ctx context.Context) error {
	logger := s.logger

	pgClient, err := newPgClient(s.config, logger)
	if err != nil {
		return fmt.Errorf("cannot create database client: %w", err)
	}
	defer pgClient.Close()

	if err := migrator.NewMigrator(pgClient, migrations.FS, logger).Run(ctx, "."); err != nil {
		return fmt.Errorf("cannot apply migrations: %w", err)
	}

	var redisClient *redis.Client
	if s.config.RedisURL != "" {
		opts, err := redis.ParseURL(s.config.RedisURL)
		if err != nil {
			return fmt.Errorf("cannot parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	if redisClient != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithRedis(redisClient))
	}
	limiter := ratelimit.NewLimiter(limiterOpts...)

	validationCfg := config.FromEnvironment()

	auditWriter := audit.NewWriter(pgClient, audit.WithLogger(logger))

	resolver := auth.NewResolver(
		auth.NewPgStore(pgClient),
		limiter,
		auditWriter,
		auth.WithCache(auth.NewCache(5*time.Minute)),
		auth.WithLogger(logger),
	)

	processor := payload.NewProcessor(pgClient, payload.WithLogger(logger))

	executor := batch.NewExecutor(pgClient, batch.WithConfig(batch.Config{
		ChunkSize:             validationCfg.ChunkSize,
		MaxConcurrentFamilies: batch.DefaultConfig.MaxConcurrentFamilies,
		DeduplicateIntraBatch: true,
	}), batch.WithLogger(logger))

	queryCache := cache.New(redisClient, cache.WithLogger(logger))
	queryEngine := query.NewEngine(pgClient, query.WithCache(queryCache), query.WithLogger(logger))

	workerOpts := []jobs.Option{
		jobs.WithLogger(logger),
		jobs.WithCacheInvalidator(queryCache),
	}
	if s.config.JobWebhookURL != "" {
		workerOpts = append(workerOpts, jobs.WithWebhook(jobs.NewHTTPNotifier(), s.config.JobWebhookURL))
	}
	worker := jobs.NewWorker(pgClient, processor, executor, validationCfg, workerOpts...)
	go worker.Run(ctx)

	timeoutCfg := timeoutConfig(s.config)

	coordinator := ingest.NewCoordinator(
		processor,
		executor,
		validationCfg,
		ingest.WithTimeoutConfig(timeoutCfg),
		ingest.WithJobEnqueuer(worker),
		ingest.WithCacheInvalidator(queryCache),
		ingest.WithLogger(logger),
	)

	api := httpapi.NewServer(
		pgClient,
		resolver,
		limiter,
		httpapi.RateLimitConfig{
			RequestsPerHour: s.config.RateLimitPerHour,
			UseUserBased:    s.config.RateLimitUseUserBased,
		},
		coordinator,
		queryEngine,
		httpapi.WithAudit(auditWriter),
		httpapi.WithLogger(logger),
	)

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	server := httpserver.NewServer(addr, api.Routes(), httpserver.WithLogger(logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", log.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("cannot shutdown http server: %w", err)
	}

	return nil
}

func newPgClient(cfg serviceConfig, logger *log.Logger) (*pg.Client, error) {
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "5432")
	}

	options := []pg.Option{
		pg.WithAddr(host),
		pg.WithLogger(logger),
		pg.WithPoolSize(int32(cfg.PoolSize)),
	}

	if u.User != nil {
		options = append(options, pg.WithUser(u.User.Username()))
		if password, ok := u.User.Password(); ok {
			options = append(options, pg.WithPassword(password))
		}
	}

	if len(u.Path) > 1 {
		options = append(options, pg.WithDatabase(u.Path[1:]))
	}

	return pg.NewClient(options...)
}

func timeoutConfig(cfg serviceConfig) timeout.Config {
	tc := timeout.DefaultConfig
	if cfg.MaxProcessingSeconds > 0 {
		tc.MaxProcessingTime = time.Duration(cfg.MaxProcessingSeconds) * time.Second
	}
	if cfg.BackgroundJobThreshold > 0 {
		tc.BackgroundJobThreshold = cfg.BackgroundJobThreshold
	}
	return tc
}

func main() {
	environment := envString("ENVIRONMENT", "development")
	logger := log.NewLogger(log.WithName("health-ingest"))

	svc := &service{
		config: configFromEnv(),
		logger: logger,
	}

	u := unit.NewUnit("health-ingest", version.New(0).Alpha(1), environment, svc)
	if err := u.Run(); err != nil {
		logger.Error("service exited with error", log.Error(err))
		os.Exit(1)
	}
}

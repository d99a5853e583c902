// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

// Package ratelimit provides a sliding-window rate limiter backed by
// Redis, with an in-process fallback used whenever Redis is
// unavailable or returns an error. The fallback keeps the same
// Option/Result shape so callers never need to know which backend
// answered a check. Infrastructure faults never block a caller: a
// Redis error degrades to the in-process path and still returns an
// allow/deny decision rather than an error.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.healthexport.dev/ingest/internal/version"
	"go.healthexport.dev/ingest/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Option is a function that configures the Limiter during
	// initialization.
	Option func(l *Limiter)

	// Limiter provides a Redis-backed rate limiter using the sliding
	// window log algorithm (a sorted set keyed by request timestamp),
	// falling back to an in-process counter when Redis is absent or
	// failing.
	Limiter struct {
		redis  *redis.Client
		logger *log.Logger
		tracer trace.Tracer

		blockedCache sync.Map // key+window -> unblockAt (time.Time)

		fallbackMu    sync.Mutex
		fallbackStore map[string]*fallbackWindow

		requestsTotal   *prometheus.CounterVec
		checkDuration   *prometheus.HistogramVec
		cacheHitsTotal  prometheus.Counter
		backendErrors   prometheus.Counter
		exhaustionTotal *prometheus.CounterVec
	}

	fallbackWindow struct {
		count       int
		windowStart time.Time
	}

	// Rate defines the rate limit parameters.
	Rate struct {
		// Limit is the maximum number of requests allowed within the
		// Window duration.
		Limit int

		// Window is the time duration for the rate limit window.
		Window time.Duration
	}

	// Result contains the outcome of a rate limit check.
	Result struct {
		// Allowed indicates whether the request is permitted.
		Allowed bool

		// Limit is the maximum number of requests allowed in the window.
		Limit int

		// Remaining is the number of requests remaining in the current window.
		Remaining int

		// ResetAt is the time when the current window resets.
		ResetAt time.Time

		// RetryAfter is how long the caller should wait before
		// retrying. It is zero when Allowed is true.
		RetryAfter time.Duration
	}
)

const (
	tracerName = "go.healthexport.dev/ingest/ratelimit"
)

// WithLogger sets a custom logger for the limiter.
func WithLogger(l *log.Logger) Option {
	return func(lim *Limiter) {
		lim.logger = l.Named("ratelimit")
	}
}

// WithTracerProvider configures OpenTelemetry tracing with the
// provided tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Limiter) {
		l.tracer = tp.Tracer(
			tracerName,
			trace.WithInstrumentationVersion(
				version.New(0).Alpha(1),
			),
		)
	}
}

// WithRegisterer sets a custom Prometheus registerer for metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(l *Limiter) {
		l.registerMetrics(r)
	}
}

// WithRedis configures the Redis client backing the sliding window.
// Without this option the limiter runs entirely on the in-process
// fallback, which is appropriate for tests and single-instance
// deployments.
func WithRedis(client *redis.Client) Option {
	return func(l *Limiter) {
		l.redis = client
	}
}

// NewLimiter creates a new rate limiter. Pass WithRedis to back it
// with a shared Redis sliding window; without it the limiter is
// in-process only.
func NewLimiter(options ...Option) *Limiter {
	l := &Limiter{
		logger:        log.NewLogger(log.WithOutput(io.Discard)),
		tracer:        otel.GetTracerProvider().Tracer(tracerName),
		fallbackStore: make(map[string]*fallbackWindow),
	}

	l.registerMetrics(prometheus.DefaultRegisterer)

	for _, o := range options {
		o(l)
	}

	return l
}

func (l *Limiter) registerMetrics(r prometheus.Registerer) {
	l.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "ratelimit",
			Name:      "requests_total",
			Help:      "Total number of rate limit checks.",
		},
		[]string{"allowed", "backend"},
	)
	if err := r.Register(l.requestsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.requestsTotal = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	l.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: "ratelimit",
			Name:      "check_duration_seconds",
			Help:      "Duration of rate limit checks in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"allowed"},
	)
	if err := r.Register(l.checkDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.checkDuration = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}

	l.cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "ratelimit",
			Name:      "cache_hits_total",
			Help:      "Total number of blocked cache hits (backend calls avoided).",
		},
	)
	if err := r.Register(l.cacheHitsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.cacheHitsTotal = are.ExistingCollector.(prometheus.Counter)
		}
	}

	l.backendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: "ratelimit",
			Name:      "backend_errors_total",
			Help:      "Total number of Redis errors that caused a fail-open fallback to the in-process store.",
		},
	)
	if err := r.Register(l.backendErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.backendErrors = are.ExistingCollector.(prometheus.Counter)
		}
	}

	l.exhaustionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "ratelimit",
			Name:      "exhaustion_total",
			Help:      "Number of checks that crossed an 80/90/100 percent window-utilization threshold.",
		},
		[]string{"threshold"},
	)
	if err := r.Register(l.exhaustionTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.exhaustionTotal = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
}

// Check consults and advances the per-credential bucket. The key is
// namespaced so credential, user, and IP buckets never collide.
func (l *Limiter) Check(ctx context.Context, credentialID string, rate Rate) (*Result, error) {
	return l.Allow(ctx, "credential:"+credentialID, rate)
}

// CheckUser consults and advances the per-user bucket, used when
// requests should aggregate across all of a user's credentials.
func (l *Limiter) CheckUser(ctx context.Context, userID string, rate Rate) (*Result, error) {
	return l.Allow(ctx, "user:"+userID, rate)
}

// CheckIP consults and advances the per-address bucket, used for
// unauthenticated or failed-auth traffic.
func (l *Limiter) CheckIP(ctx context.Context, ip string, rate Rate) (*Result, error) {
	return l.Allow(ctx, "ip:"+ip, rate)
}

// Allow checks if a single request is allowed for the given key and rate.
func (l *Limiter) Allow(ctx context.Context, key string, rate Rate) (*Result, error) {
	return l.AllowN(ctx, key, rate, 1)
}

// AllowN checks if n requests are allowed for the given key and rate.
// Redis errors never surface to the caller: the check degrades to the
// in-process fallback and a decision is still returned.
func (l *Limiter) AllowN(ctx context.Context, key string, rate Rate, n int) (*Result, error) {
	start := time.Now()

	var (
		rootSpan = trace.SpanFromContext(ctx)
		span     trace.Span
	)

	if rootSpan.IsRecording() {
		ctx, span = l.tracer.Start(
			ctx,
			"ratelimit.AllowN",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("ratelimit.key", key),
				attribute.Int("ratelimit.limit", rate.Limit),
				attribute.Int64("ratelimit.window_ms", rate.Window.Milliseconds()),
				attribute.Int("ratelimit.n", n),
			),
		)
		defer span.End()
	}

	now := time.Now()
	cacheKey := fmt.Sprintf("%s:%d", key, rate.Window.Milliseconds())

	// Fast path: check local blocked cache, regardless of backend.
	if unblockAt, ok := l.blockedCache.Load(cacheKey); ok {
		if now.Before(unblockAt.(time.Time)) {
			l.cacheHitsTotal.Inc()

			result := &Result{
				Allowed:    false,
				Limit:      rate.Limit,
				Remaining:  0,
				ResetAt:    unblockAt.(time.Time),
				RetryAfter: unblockAt.(time.Time).Sub(now),
			}

			if rootSpan.IsRecording() {
				span.SetAttributes(
					attribute.Bool("ratelimit.allowed", false),
					attribute.Bool("ratelimit.cache_hit", true),
				)
			}

			l.recordMetrics(false, "cache", time.Since(start))
			return result, nil
		}
		l.blockedCache.Delete(cacheKey)
	}

	var (
		result  *Result
		backend string
		err     error
	)

	if l.redis != nil {
		result, err = l.allowRedis(ctx, key, rate, n, now)
		if err != nil {
			l.backendErrors.Inc()
			l.logger.WarnCtx(ctx, "redis rate limit check failed, failing open to in-process store",
				log.Error(err), log.String("ratelimit_key", key))
			result = l.allowFallback(key, rate, n, now)
			backend = "fallback"
		} else {
			backend = "redis"
		}
	} else {
		result = l.allowFallback(key, rate, n, now)
		backend = "fallback"
	}

	if !result.Allowed {
		l.blockedCache.Store(cacheKey, result.ResetAt)
	}

	if rootSpan.IsRecording() {
		span.SetAttributes(
			attribute.Bool("ratelimit.allowed", result.Allowed),
			attribute.Bool("ratelimit.cache_hit", false),
			attribute.String("ratelimit.backend", backend),
			attribute.Int("ratelimit.remaining", result.Remaining),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	l.recordMetrics(result.Allowed, backend, time.Since(start))
	l.recordExhaustion(rate, result)

	return result, nil
}

// recordExhaustion increments the exhaustion counter when a check
// lands at or past 80, 90, or 100 percent of the window's limit,
// counting the highest threshold reached.
func (l *Limiter) recordExhaustion(rate Rate, result *Result) {
	if rate.Limit <= 0 {
		return
	}

	used := rate.Limit - result.Remaining
	utilization := float64(used) / float64(rate.Limit)

	switch {
	case !result.Allowed || utilization >= 1.0:
		l.exhaustionTotal.WithLabelValues("100").Inc()
	case utilization >= 0.9:
		l.exhaustionTotal.WithLabelValues("90").Inc()
	case utilization >= 0.8:
		l.exhaustionTotal.WithLabelValues("80").Inc()
	}
}

// allowRedis implements the sliding window log algorithm against a
// sorted set: members are unique per-request ids scored by their
// unix-nanosecond timestamp, expired members are trimmed before
// counting, and the set TTL tracks the window so idle keys vanish on
// their own.
func (l *Limiter) allowRedis(ctx context.Context, key string, rate Rate, n int, now time.Time) (*Result, error) {
	redisKey := "ratelimit:{" + key + "}"
	windowStart := now.Add(-rate.Window)

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cannot trim and count sliding window: %w", err)
	}

	currentCount := int(count.Val())
	resetAt := now.Add(rate.Window)

	if currentCount+n > rate.Limit {
		oldest, err := l.redis.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			resetAt = time.Unix(0, int64(oldest[0].Score)).Add(rate.Window)
		}

		return &Result{
			Allowed:    false,
			Limit:      rate.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	addPipe := l.redis.TxPipeline()
	for i := 0; i < n; i++ {
		member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
		addPipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	}
	addPipe.Expire(ctx, redisKey, rate.Window)
	if _, err := addPipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cannot record request in sliding window: %w", err)
	}

	remaining := rate.Limit - currentCount - n
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   true,
		Limit:     rate.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// allowFallback implements a fixed-window counter in process memory,
// used when Redis is unconfigured or unreachable. It does not
// replicate across instances, which is an accepted degradation during
// outages (spec: fail open rather than fail closed).
func (l *Limiter) allowFallback(key string, rate Rate, n int, now time.Time) *Result {
	l.fallbackMu.Lock()
	defer l.fallbackMu.Unlock()

	w, ok := l.fallbackStore[key]
	if !ok || now.Sub(w.windowStart) > rate.Window {
		w = &fallbackWindow{windowStart: now}
		l.fallbackStore[key] = w
	}

	resetAt := w.windowStart.Add(rate.Window)

	if w.count+n > rate.Limit {
		return &Result{
			Allowed:    false,
			Limit:      rate.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	w.count += n
	remaining := rate.Limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   true,
		Limit:     rate.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Reset clears any rate-limit state for key, in both Redis and the
// in-process fallback. Intended for tests and operator intervention.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	l.fallbackMu.Lock()
	delete(l.fallbackStore, key)
	l.fallbackMu.Unlock()

	l.blockedCache.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), key+":") {
			l.blockedCache.Delete(k)
		}
		return true
	})

	if l.redis == nil {
		return nil
	}

	if err := l.redis.Del(ctx, "ratelimit:{"+key+"}").Err(); err != nil {
		return fmt.Errorf("cannot reset rate limit key: %w", err)
	}

	return nil
}

func (l *Limiter) recordMetrics(allowed bool, backend string, duration time.Duration) {
	allowedStr := "true"
	if !allowed {
		allowedStr = "false"
	}

	l.requestsTotal.WithLabelValues(allowedStr, backend).Inc()
	l.checkDuration.WithLabelValues(allowedStr).Observe(duration.Seconds())
}

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

// Package ratelimit provides a Redis-backed sliding window rate
// limiter with an in-process fallback.
//
// # Algorithm
//
// The sliding window log algorithm records one sorted-set member per
// accepted request, scored by its timestamp. A check trims expired
// members (older than the window) before counting, so the limit is
// exact rather than approximated across fixed buckets. The set's TTL
// tracks the window, so idle keys expire on their own without a
// separate cleanup pass.
//
// # Fail-open
//
// Redis errors are not propagated to callers. AllowN falls back to an
// in-process fixed-window counter and still returns a decision. The
// fallback does not replicate across instances, which is an accepted
// degradation during a Redis outage: the alternative, failing closed,
// would turn an infrastructure fault into a total ingest outage.
//
// # Usage
//
//	limiter := ratelimit.NewLimiter(
//	    ratelimit.WithRedis(redisClient),
//	    ratelimit.WithLogger(logger),
//	    ratelimit.WithTracerProvider(tp),
//	    ratelimit.WithRegisterer(registry),
//	)
//
//	result, err := limiter.Allow(ctx, "user:123", ratelimit.Rate{
//	    Limit:  100,
//	    Window: time.Minute,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if !result.Allowed {
//	    w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
//	    w.Header().Set("X-RateLimit-Remaining", "0")
//	    w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
//	    w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
//	    w.WriteHeader(http.StatusTooManyRequests)
//	    return
//	}
//
// # Metrics
//
//   - ratelimit_requests_total{allowed,backend}: Counter of rate limit checks
//   - ratelimit_check_duration_seconds{allowed}: Histogram of check durations
//   - ratelimit_cache_hits_total: Counter of blocked cache hits (backend calls avoided)
//   - ratelimit_backend_errors_total: Counter of Redis errors that triggered fail-open
package ratelimit

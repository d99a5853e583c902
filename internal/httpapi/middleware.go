package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.healthexport.dev/ingest/httpserver"
	"go.healthexport.dev/ingest/internal/auth"
	"go.healthexport.dev/ingest/log"
	"go.healthexport.dev/ingest/ratelimit"
)

type contextKey int

const authContextKey contextKey = iota

func authContextFrom(ctx context.Context) (auth.Context, bool) {
	authCtx, ok := ctx.Value(authContextKey).(auth.Context)
	return authCtx, ok
}

// authenticate extracts the bearer credential, resolves it through
// the auth service, and rejects the request on any resolution
// failure (outcome precedence surfaced as 401/429).
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		secret, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || secret == "" {
			httpserver.RenderError(w, http.StatusUnauthorized, auth.ErrInvalidAPIKey)
			return
		}

		authCtx, err := s.resolver.Resolve(r.Context(), secret, clientIP(r))
		if err != nil {
			var rlErr *auth.RateLimitError
			if errors.As(err, &rlErr) {
				w.Header().Set("retry-after", strconv.Itoa(int(rlErr.RetryAfter.Seconds())))
				httpserver.RenderError(w, http.StatusTooManyRequests, err)
				return
			}
			if errors.Is(err, auth.ErrAPIKeyExpired) || errors.Is(err, auth.ErrInvalidAPIKey) {
				httpserver.RenderError(w, http.StatusUnauthorized, err)
				return
			}
			httpserver.RenderError(w, http.StatusUnauthorized, err)
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// enforceRateLimit applies the configurable per-request throughput
// ceiling on top of the resolver's own fixed
// brute-force-mitigation window, setting the rate-limit headers on
// every response the limiter answered, allowed or denied. No headers
// are set when the limiter is disabled, or when it errors and the
// request fails open.
func (s *Server) enforceRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.rateCfg.RequestsPerHour <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		authCtx, _ := authContextFrom(r.Context())
		rate := ratelimit.Rate{
			Limit:  s.rateCfg.RequestsPerHour,
			Window: time.Hour,
		}

		var (
			result *ratelimit.Result
			err    error
		)
		if s.rateCfg.UseUserBased {
			result, err = s.limiter.CheckUser(r.Context(), authCtx.User.ID.String(), rate)
		} else {
			result, err = s.limiter.Check(r.Context(), authCtx.Credential.ID.String(), rate)
		}
		if err != nil {
			s.logger.WarnCtx(r.Context(), "rate limiter degraded, failing open", log.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("x-ratelimit-limit", strconv.Itoa(result.Limit))
		w.Header().Set("x-ratelimit-remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("x-ratelimit-reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			w.Header().Set("retry-after", strconv.Itoa(int(result.RetryAfter.Seconds())))
			if s.audit != nil {
				s.audit.Emit(r.Context(), "rate_limit_exceeded", map[string]any{
					"resource":      "rate_limited",
					"user_id":       authCtx.User.ID,
					"credential_id": authCtx.Credential.ID,
					"client_ip":     clientIP(r),
					"user_agent":    r.UserAgent(),
				})
			}
			httpserver.RenderError(w, http.StatusTooManyRequests, auth.ErrRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("x-forwarded-for"); ip != "" {
		if i := strings.IndexByte(ip, ','); i >= 0 {
			return strings.TrimSpace(ip[:i])
		}
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

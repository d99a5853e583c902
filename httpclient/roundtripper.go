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

package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.healthexport.dev/ingest/internal/version"
	"go.healthexport.dev/ingest/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	roundTripperTracerName = "go.healthexport.dev/ingest/httpclient"
)

type (
	// TelemetryRoundTripper is an http.RoundTripper that wraps
	// another http.RoundTripper to add telemetry capabilities. It
	// logs requests, measures request latency, and counts
	// requests using specified telemetry tools.
	TelemetryRoundTripper struct {
		logger   *log.Logger
		tracer   trace.Tracer
		requests *prometheus.CounterVec
		latency  *prometheus.HistogramVec
		next     http.RoundTripper
	}
)

var (
	_ http.RoundTripper = (*TelemetryRoundTripper)(nil)
)

// NewTelemetryRoundTripper creates a new TelemetryRoundTripper wrapping
// next, recording structured logs, an OpenTelemetry span, and
// Prometheus metrics for every outgoing request.
func NewTelemetryRoundTripper(
	next http.RoundTripper,
	logger *log.Logger,
	tp trace.TracerProvider,
	registerer prometheus.Registerer,
) *TelemetryRoundTripper {
	labels := []string{"method", "host", "status_code"}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outgoing HTTP requests made.",
		},
		labels,
	)
	if err := registerer.Register(requests); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			requests = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			panic(fmt.Errorf("cannot register http_client_requests_total: %w", err))
		}
	}

	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outgoing HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		labels,
	)
	if err := registerer.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			panic(fmt.Errorf("cannot register http_client_request_duration_seconds: %w", err))
		}
	}

	return &TelemetryRoundTripper{
		next:     next,
		logger:   logger,
		requests: requests,
		latency:  latency,
		tracer: tp.Tracer(
			roundTripperTracerName,
			trace.WithInstrumentationVersion(version.New(0).Alpha(1)),
		),
	}
}

// RoundTrip executes a single HTTP transaction and records telemetry
// data including metrics and traces. It logs the request details,
// measures the request latency, and counts the request based on the
// response status. It sanitizes URLs to exclude query parameters and
// fragments for logging and tracing.
func (rt *TelemetryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()
	newReq := req.Clone(ctx)

	reqURL := sanitizeURL(newReq.URL)

	requestID := newReq.Header.Get("x-request-id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	newReq.Header.Set("x-request-id", requestID)

	ctx, span := rt.tracer.Start(ctx, fmt.Sprintf("%s %s", newReq.Method, reqURL.Host))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", newReq.Method),
		attribute.String("http.url", reqURL.String()),
		attribute.String("http.host", newReq.Host),
		attribute.String("http.request_id", requestID),
	)

	logger := rt.logger.With(
		log.String("http_request_method", newReq.Method),
		log.String("http_request_host", reqURL.Host),
		log.String("http_request_path", reqURL.Path),
		log.String("http_request_id", requestID),
	)

	resp, err := rt.next.RoundTrip(newReq.WithContext(ctx))
	if err != nil {
		logger.ErrorCtx(ctx, "cannot execute http transaction", log.Error(err))

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return resp, err
	}

	duration := time.Since(start)
	metricLabels := prometheus.Labels{
		"method":      newReq.Method,
		"host":        reqURL.Host,
		"status_code": fmt.Sprintf("%d", resp.StatusCode),
	}
	rt.requests.With(metricLabels).Inc()
	rt.latency.With(metricLabels).Observe(duration.Seconds())

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	msg := fmt.Sprintf("%s %s %d %s", newReq.Method, reqURL.String(), resp.StatusCode, duration)
	if resp.StatusCode >= http.StatusInternalServerError {
		logger.ErrorCtx(ctx, msg)
	} else {
		logger.InfoCtx(ctx, msg)
	}

	return resp, nil
}

func sanitizeURL(u *url.URL) *url.URL {
	u2 := *u
	u2.RawQuery = ""
	u2.Fragment = ""
	u2.User = nil

	return &u2
}

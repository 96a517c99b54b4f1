// Package viacep provides the rate-governed ViaCEP fetch client with
// retry, backoff, and error classification. Every terminal state is
// encoded in an Outcome; the client never lets an error escape its
// boundary.
package viacep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/cache"
	"cep-pipeline/pkg/ratelimit"
)

// Prometheus metrics for fetch operations.
var (
	cepRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cep_requests_total",
		Help: "Total CEP requests by status",
	}, []string{"status"})

	cepRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cep_request_duration_seconds",
		Help:    "CEP request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	cepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cep_failures_total",
		Help: "Terminal fetch failures by category",
	}, []string{"category"})

	cepRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cep_retries_total",
		Help: "Total number of retry attempts by category",
	}, []string{"category"})

	cepRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cep_retry_backoff_seconds",
		Help:    "Backoff duration between retries by category",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"category"})

	cepRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cep_retry_exhausted_total",
		Help: "Total number of CEPs that exhausted all retry attempts",
	})
)

// Fetcher resolves one CEP into an Outcome. Implemented by Client for
// the live API and by OfflineFetcher for the synthetic substitute.
type Fetcher interface {
	Fetch(ctx context.Context, cep string) Outcome
}

// Admitter gates outbound requests. *ratelimit.Governor satisfies it.
type Admitter interface {
	Acquire(ctx context.Context) (time.Time, error)
}

// Client is the live ViaCEP fetch client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration and its collaborators.
type Config struct {
	// Governor is consulted before every attempt (REQUIRED).
	Governor Admitter

	// Spacer optionally smooths bursts between admitted requests.
	Spacer *ratelimit.Spacer

	// Cache is an optional lookup cache consulted before spending a
	// rate slot. Nil disables caching.
	Cache *cache.Lookup

	// BaseURL of the ViaCEP service, e.g. "https://viacep.com.br".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Retry
	MaxAttempts int
	BaseBackoff time.Duration

	// PerRequestTimeout is the hard deadline for a single attempt.
	PerRequestTimeout time.Duration
}

// DefaultConfig returns a safe default configuration for the live API.
func DefaultConfig(governor Admitter, baseURL string) Config {
	return Config{
		Governor:          governor,
		BaseURL:           baseURL,
		UserAgent:         "cep-pipeline/1.0",
		MaxAttempts:       3,
		BaseBackoff:       1 * time.Second,
		PerRequestTimeout: 10 * time.Second,
	}
}

// New creates a new ViaCEP client.
func New(cfg Config) (*Client, error) {
	if cfg.Governor == nil {
		return nil, fmt.Errorf("rate governor is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}

	if cfg.PerRequestTimeout <= 0 {
		return nil, fmt.Errorf("per-request timeout must be positive")
	}

	logger := log.With().Str("component", "viacep-client").Logger()

	// Pooled transport so connections are reused across calls from
	// the same worker.
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Close releases idle connections held by the transport.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Fetch resolves one CEP. Each attempt re-acquires a rate slot, so
// retries count against the rate budget.
func (c *Client) Fetch(ctx context.Context, rawCEP string) Outcome {
	startTime := time.Now()
	defer func() {
		cepRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	cep, ok := NormalizeCEP(rawCEP)
	if !ok {
		c.logger.Warn().Str("cep", rawCEP).Msg("Malformed CEP rejected before fetch")
		cepFailuresTotal.WithLabelValues(string(CategoryInvalidKey)).Inc()
		return newFailure(rawCEP, CategoryInvalidKey, "malformed CEP: want 8 numeric digits", 1)
	}

	// A cache hit resolves the CEP without spending a rate slot.
	if c.config.Cache != nil {
		fields, err := c.config.Cache.Get(ctx, cep)
		if err == nil {
			c.logger.Debug().Str("cep", cep).Msg("Lookup cache hit")
			cepRequestsTotal.WithLabelValues("cache_hit").Inc()
			return Outcome{Success: &Success{CEP: cep, Fields: fields, Attempts: 0}}
		}
		if !errors.Is(err, cache.ErrLookupMiss) {
			c.logger.Warn().Err(err).Str("cep", cep).Msg("Lookup cache error - falling through to fetch")
		}
	}

	var lastFailure *Failure

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if _, err := c.config.Governor.Acquire(ctx); err != nil {
			c.logger.Warn().Err(err).Str("cep", cep).Msg("Rate acquisition aborted")
			cepFailuresTotal.WithLabelValues(string(CategoryTransportError)).Inc()
			return newFailure(cep, CategoryTransportError, fmt.Sprintf("rate acquisition aborted: %v", err), attempt)
		}

		if err := c.config.Spacer.Wait(ctx); err != nil {
			cepFailuresTotal.WithLabelValues(string(CategoryTransportError)).Inc()
			return newFailure(cep, CategoryTransportError, fmt.Sprintf("request spacing aborted: %v", err), attempt)
		}

		outcome := c.attempt(ctx, cep, attempt)

		if outcome.Success != nil {
			if attempt > 1 {
				c.logger.Info().
					Str("cep", cep).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			cepRequestsTotal.WithLabelValues("success").Inc()

			if c.config.Cache != nil {
				if err := c.config.Cache.Set(ctx, cep, outcome.Success.Fields); err != nil {
					c.logger.Warn().Err(err).Str("cep", cep).Msg("Failed to cache lookup")
				}
			}
			return outcome
		}

		lastFailure = outcome.Failure

		if !lastFailure.Category.Retryable() {
			cepFailuresTotal.WithLabelValues(string(lastFailure.Category)).Inc()
			return outcome
		}

		if attempt >= c.config.MaxAttempts {
			break
		}

		// Exponential backoff with +-20% jitter to avoid re-synchronizing
		// with other workers.
		backoff := backoffFor(c.config.BaseBackoff, attempt)
		cepRetriesTotal.WithLabelValues(string(lastFailure.Category)).Inc()
		cepRetryBackoffSeconds.WithLabelValues(string(lastFailure.Category)).Observe(backoff.Seconds())

		c.logger.Debug().
			Str("cep", cep).
			Str("category", string(lastFailure.Category)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying fetch after backoff")

		select {
		case <-ctx.Done():
			cepFailuresTotal.WithLabelValues(string(CategoryTransportError)).Inc()
			return newFailure(cep, CategoryTransportError, fmt.Sprintf("cancelled during backoff: %v", ctx.Err()), attempt)
		case <-time.After(backoff):
		}
	}

	// All attempts failed with retryable errors.
	cepRetryExhaustedTotal.Inc()
	cepFailuresTotal.WithLabelValues(string(CategoryExhaustedRetries)).Inc()

	c.logger.Warn().
		Str("cep", cep).
		Int("max_attempts", c.config.MaxAttempts).
		Str("last_category", string(lastFailure.Category)).
		Msg("Retry attempts exhausted")

	message := fmt.Sprintf("retries exhausted after %d attempts: %s", c.config.MaxAttempts, lastFailure.Message)
	return newFailure(cep, CategoryExhaustedRetries, message, c.config.MaxAttempts)
}

// attempt performs a single HTTP call and classifies the response.
func (c *Client) attempt(ctx context.Context, cep string, attempt int) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.PerRequestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/ws/%s/json/", c.config.BaseURL, cep)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return newFailure(cep, CategoryInvalidResponse, fmt.Sprintf("create request: %v", err), attempt)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		category := CategoryTransportError
		if isTimeout(err) {
			category = CategoryTimeout
		}
		c.logger.Debug().Err(err).Str("cep", cep).Str("category", string(category)).Msg("HTTP request failed")
		cepRequestsTotal.WithLabelValues("network_error").Inc()
		return newFailure(cep, category, err.Error(), attempt)
	}
	defer resp.Body.Close()

	cepRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
		return c.parseBody(resp.Body, cep, attempt)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn().
			Str("cep", cep).
			Int("status", resp.StatusCode).
			Msg("Retryable HTTP error")
		return newFailure(cep, CategoryTransportError, fmt.Sprintf("HTTP %d", resp.StatusCode), attempt)

	case resp.StatusCode == http.StatusBadRequest:
		// ViaCEP answers 400 for CEPs it considers malformed.
		return newFailure(cep, CategoryInvalidKey, "rejected by service: HTTP 400", attempt)

	default:
		return newFailure(cep, CategoryInvalidResponse, fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode), attempt)
	}
}

// parseBody interprets a 200 response. ViaCEP signals a nonexistent
// CEP with {"erro": true} rather than a 404.
func (c *Client) parseBody(body io.Reader, cep string, attempt int) Outcome {
	data, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return newFailure(cep, CategoryTransportError, fmt.Sprintf("read body: %v", err), attempt)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return newFailure(cep, CategoryInvalidResponse, fmt.Sprintf("unparseable payload: %v", err), attempt)
	}

	if isNotFound(payload) {
		return newFailure(cep, CategoryNotFound, "CEP does not exist", attempt)
	}

	// Keep raw string values exactly as received; non-string values
	// have no place in the address schema and are dropped.
	fields := make(map[string]string, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	if len(fields) == 0 {
		return newFailure(cep, CategoryInvalidResponse, "payload carries no address fields", attempt)
	}

	return Outcome{Success: &Success{CEP: cep, Fields: fields, Attempts: attempt}}
}

// isNotFound detects the {"erro": true} marker. Older API versions
// returned the flag as the string "true".
func isNotFound(payload map[string]any) bool {
	v, ok := payload["erro"]
	if !ok {
		return false
	}
	switch marker := v.(type) {
	case bool:
		return marker
	case string:
		return marker == "true"
	default:
		return false
	}
}

// isTimeout reports whether a transport error was a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

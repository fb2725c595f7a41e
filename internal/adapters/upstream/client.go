// Package upstream talks to the third-party sources the pipeline harvests:
// the ranking endpoint, the two regional catalogs and the reference mirror.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/mastery/pkg/logger"
	"github.com/okian/mastery/pkg/metrics"
)

// Default client configuration constants.
const (
	defaultTimeout     = 15 * time.Second
	defaultRPS         = 10
	defaultUserAgent   = "mastery-harvester/1.0"
	maxErrorBodyLength = 256
)

// Source names used in logs and metrics.
const (
	SourceRanking   = "ranking"
	SourcePrimary   = "catalog_primary"
	SourceSecondary = "catalog_secondary"
	SourceReference = "reference"
)

// Client is the shared HTTP transport: one rate limiter for every source,
// a request timeout and JSON decoding.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    logger.Logger
}

// NewClient creates a Client with configuration options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		limiter:   rate.NewLimiter(rate.Limit(defaultRPS), 1),
		userAgent: defaultUserAgent,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logger.Get().Named("upstream")
	}

	return c
}

// doJSON waits for the limiter, sends req and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, source string, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordUpstreamRequest(source, "transport_error", latency)
		return fmt.Errorf("%w: %s: %w", ErrTransport, source, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstreamRequest(source, "http_error", latency)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return fmt.Errorf("%w: %s: status %d: %s", ErrHTTPStatus, source, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordUpstreamRequest(source, "decode_error", latency)
		return fmt.Errorf("%w: %s: %w", ErrDecode, source, err)
	}

	metrics.RecordUpstreamRequest(source, "ok", latency)
	c.logger.Debug(ctx, "upstream request",
		logger.String("source", source),
		logger.String("url", req.URL.String()),
		logger.Float64("latency_ms", latency),
	)
	return nil
}

package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desertthunder/immport/internal/shared"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent on source requests when none is configured.
const DefaultUserAgent = "immport/1.0"

// NewTransferClient returns a client for streaming transfers. headerTimeout bounds the wait for
// response headers only; bodies are read without a deadline so large media can take as long as they need.
// Cancel a single request through its context.
func NewTransferClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	if headerTimeout > 0 {
		transport.TLSHandshakeTimeout = headerTimeout
	}
	return &http.Client{Transport: transport}
}

// HTTPFetcher is a rate-limited [Fetcher].
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPFetcher creates a fetcher allowing perSecond requests per second.
// A non-positive rate disables throttling.
func NewHTTPFetcher(client *http.Client, perSecond float64, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	return &HTTPFetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: userAgent,
	}
}

// Fetch issues a GET for mediaURL and returns the response body on a 2xx status.
func (f *HTTPFetcher) Fetch(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	const op = "fetch"
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, shared.E(shared.KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, shared.E(shared.KindValidation, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, shared.E(shared.KindNetworkTransient, op, fmt.Errorf("request failed: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, shared.E(
			shared.KindFromStatus(resp.StatusCode),
			op,
			fmt.Errorf("%w: GET %s: status %d", shared.ErrAPIRequest, mediaURL, resp.StatusCode),
		)
	}
	return resp.Body, nil
}

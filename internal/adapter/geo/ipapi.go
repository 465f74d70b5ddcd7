// Package geo looks up location and network metadata for client addresses.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// Fields is the field list requested from the provider, in its own naming.
var Fields = strings.Join(domain.GeoColumns, ",")

const (
	DefaultEndpoint      = "http://ip-api.com/json/"
	DefaultTimeout       = 15 * time.Second
	DefaultRatePerMinute = 45

	maxBodyBytes  = 1 << 20
	maxLoggedBody = 256
)

// Options configures a Client.
type Options struct {
	Endpoint      string
	Timeout       time.Duration
	RatePerMinute int
	HTTPClient    *http.Client
}

// Client queries an ip-api compatible JSON endpoint, one address per request.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewClient builds a Client. Zero-valued options fall back to the defaults;
// a negative RatePerMinute disables client-side throttling.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RatePerMinute == 0 {
		opts.RatePerMinute = DefaultRatePerMinute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	}

	return &Client{
		endpoint: opts.Endpoint,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.With("component", "geo_client"),
	}
}

// Lookup fetches metadata for one address. Every failure is returned as a
// *domain.LookupFailure; the caller decides whether to go on.
func (c *Client) Lookup(ctx context.Context, address string) (domain.GeoMetadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeoMetadata{}, &domain.LookupFailure{Address: address, Reason: "rate limiter", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.endpoint + url.PathEscape(address) + "?fields=" + Fields
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.GeoMetadata{}, &domain.LookupFailure{Address: address, Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GeoMetadata{}, &domain.LookupFailure{Address: address, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoMetadata{}, &domain.LookupFailure{
			Address: address,
			Reason:  fmt.Sprintf("http status %d: %s", resp.StatusCode, snippet(resp.Body)),
		}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return domain.GeoMetadata{}, &domain.LookupFailure{
			Address: address,
			Reason:  fmt.Sprintf("non-json response (%s): %s", ct, snippet(resp.Body)),
		}
	}

	var meta domain.GeoMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&meta); err != nil {
		return domain.GeoMetadata{}, &domain.LookupFailure{Address: address, Reason: "decode response", Err: err}
	}
	if meta.Query == "" {
		meta.Query = address
	}

	if meta.Status != nil && *meta.Status != "success" {
		msg := ""
		if meta.Message != nil {
			msg = *meta.Message
		}
		c.logger.Debug("provider reported no data", "address", address, "status", *meta.Status, "message", msg)
	}
	return meta, nil
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxLoggedBody))
	return strings.TrimSpace(string(b))
}

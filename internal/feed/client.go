package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/darrenwatt/truthy/internal/config"
	"github.com/darrenwatt/truthy/internal/domain"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxRetryDelay bounds the backoff between attempts regardless of the
// configured base and retry count.
const maxRetryDelay = 30 * time.Second

// Client fetches the monitored account's recent statuses from a
// Mastodon-compatible API, routed through the configured intermediary.
//
// Fetch never fails across this boundary: every unrecoverable condition is
// logged and degrades to an empty page, leaving the next poll cycle to try
// again.
type Client struct {
	// BaseURL is the instance origin. Overridable so tests can point at a
	// local httptest server.
	BaseURL string

	cfg       config.Config
	transport transport
	logger    *zap.Logger

	// accountID is resolved on the first successful lookup and cached for
	// the lifetime of the process; account ids are stable upstream.
	accountID string
}

// NewClient builds a Client with the transport selected by cfg.ProxyMode.
func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	var t transport
	switch cfg.ProxyMode {
	case "solver":
		t = newSolverTransport(cfg.RequestTimeout, cfg.SolverURL)
	case "direct":
		t = newDirectTransport(cfg.RequestTimeout)
	default:
		t = newProxyTransport(cfg.RequestTimeout, cfg.ScrapeOpsURL, cfg.ScrapeOpsAPIKey, cfg.ScrapeOpsCountry)
	}

	return &Client{
		BaseURL:   "https://" + cfg.FeedInstance,
		cfg:       cfg,
		transport: t,
		logger:    logger,
	}
}

// Fetch returns one page of recent statuses, excluding replies and reshares.
// On any unrecoverable failure it returns nil.
func (c *Client) Fetch(ctx context.Context) []domain.Status {
	id, err := c.lookupAccount(ctx)
	if err != nil {
		c.logger.Error("account lookup failed", zap.String("acct", c.cfg.FeedUsername), zap.Error(err))
		return nil
	}

	params := url.Values{}
	params.Set("exclude_replies", "true")
	params.Set("exclude_reblogs", "true")
	params.Set("limit", fmt.Sprint(c.cfg.PageLimit))
	target := fmt.Sprintf("%s/api/v1/accounts/%s/statuses?%s", c.BaseURL, id, params.Encode())

	resp, err := c.get(ctx, target)
	if err != nil {
		c.logger.Error("statuses fetch failed", zap.Error(err))
		return nil
	}

	var statuses []domain.Status
	if err := resp.Decode(&statuses); err != nil {
		c.logger.Error("statuses response malformed",
			zap.Error(fmt.Errorf("%w: %v", domain.ErrMalformedUpstream, err)),
			zap.ByteString("body_head", head(resp.Bytes(), 500)),
		)
		return nil
	}

	c.logger.Info("fetched statuses", zap.Int("count", len(statuses)))
	return statuses
}

// lookupAccount resolves the configured handle to an account id, caching the
// result across cycles.
func (c *Client) lookupAccount(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}

	target := fmt.Sprintf("%s/api/v1/accounts/lookup?acct=%s", c.BaseURL, url.QueryEscape(c.cfg.FeedUsername))
	resp, err := c.get(ctx, target)
	if err != nil {
		return "", err
	}

	var account struct {
		ID string `json:"id"`
	}
	if err := resp.Decode(&account); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedUpstream, err)
	}
	if account.ID == "" {
		return "", fmt.Errorf("%w: lookup returned no id for %q", domain.ErrMalformedUpstream, c.cfg.FeedUsername)
	}

	c.accountID = account.ID
	c.logger.Debug("resolved account id", zap.String("account_id", account.ID))
	return account.ID, nil
}

// get issues the request with exponential backoff. Retry stops early when the
// classified error is not retryable or the ctx is cancelled.
func (c *Client) get(ctx context.Context, target string) (upstreamResponse, error) {
	headers := c.browserHeaders()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying upstream request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.transport.Get(ctx, target, headers)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var fe *FetchError
		if errors.As(err, &fe) && !fe.Retryable {
			break
		}
	}
	return nil, lastErr
}

// backoff doubles the configured base delay per attempt, clamped at
// maxRetryDelay. The clamp also covers shift overflow at large attempt
// counts, where the doubled value wraps negative.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBaseDelay << (attempt - 1)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// browserHeaders mimics a regular browser session; the upstream rejects
// obviously non-browser clients.
func (c *Client) browserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Referer", fmt.Sprintf("https://%s/@%s", c.cfg.FeedInstance, c.cfg.FeedUsername))
	h.Set("Origin", "https://"+c.cfg.FeedInstance)
	return h
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func head(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

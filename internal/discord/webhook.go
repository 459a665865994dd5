// Package discord delivers formatted notifications to a Discord-compatible
// webhook endpoint.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/darrenwatt/truthy/internal/domain"
)

// defaultRetryAfter is used when a 429 body carries no retry_after field.
const defaultRetryAfter = 5 * time.Second

// DeliveryError is a non-2xx webhook response after any secondary-failure
// handling. The item is not marked processed, so the next cycle retries it.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.Status, e.Body)
}

// Webhook sends notifications with a client-side throttle independent of the
// receiver's own rate limiting. When the quota is exhausted Send blocks until
// a slot frees up rather than failing.
type Webhook struct {
	url      string
	username string
	client   *http.Client
	logger   *zap.Logger

	// throttle blocks until the client-side quota admits one more POST.
	// Every POST passes through it, the 429 retry included. Swapped in
	// tests to count admissions without a real limiter window.
	throttle func(ctx context.Context) error

	// wait is swapped in tests to observe the 429 suspension without
	// sleeping for real.
	wait func(ctx context.Context, d time.Duration) error
}

// NewWebhook constructs the delivery channel. calls/period defines the
// client-side quota (e.g. 30 sends per 60 s); burst equals the quota so a
// fresh process may spend the whole window at once but never exceed it.
func NewWebhook(url, username string, calls int, period, timeout time.Duration, logger *zap.Logger) *Webhook {
	limiter := rate.NewLimiter(rate.Limit(float64(calls)/period.Seconds()), calls)
	return &Webhook{
		url:      url,
		username: username,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		throttle: limiter.Wait,
		wait:     sleepCtx,
	}
}

// Send posts the notification. Secondary failures are handled here:
// 400 is surfaced with full diagnostics and never retried, 429 suspends for
// the receiver-specified interval and retries exactly once.
func (w *Webhook) Send(ctx context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Text) == "" {
		return domain.ErrEmptyMessage
	}

	if err := w.throttle(ctx); err != nil {
		return err
	}

	status, body, err := w.post(ctx, n)
	if err != nil {
		return fmt.Errorf("execute webhook: %w", err)
	}

	switch {
	case status == http.StatusBadRequest:
		w.logger.Error("webhook rejected payload",
			zap.Int("message_length", len([]rune(n.Text))),
			zap.String("message_head", headString(n.Text, 500)),
			zap.String("response_body", body),
		)
		return &DeliveryError{Status: status, Body: body}

	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(body)
		w.logger.Warn("webhook rate limit hit",
			zap.Duration("retry_after", retryAfter),
		)
		if err := w.wait(ctx, retryAfter); err != nil {
			return err
		}
		if err := w.throttle(ctx); err != nil {
			return err
		}

		status, body, err = w.post(ctx, n)
		if err != nil {
			return fmt.Errorf("execute webhook retry: %w", err)
		}
		if status >= 200 && status <= 299 {
			return nil
		}
		return &DeliveryError{Status: status, Body: body}

	case status >= 200 && status <= 299:
		return nil

	default:
		return &DeliveryError{Status: status, Body: body}
	}
}

// post performs one webhook POST: multipart when attachments are present,
// plain JSON otherwise. Returns the response status and body.
func (w *Webhook) post(ctx context.Context, n domain.Notification) (int, string, error) {
	var (
		payload     io.Reader
		contentType string
	)

	body, err := json.Marshal(map[string]string{
		"content":  n.Text,
		"username": w.username,
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshal payload: %w", err)
	}

	if len(n.Attachments) == 0 {
		payload = bytes.NewReader(body)
		contentType = "application/json"
	} else {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)

		if err := mw.WriteField("payload_json", string(body)); err != nil {
			return 0, "", fmt.Errorf("write payload_json: %w", err)
		}
		for i, att := range n.Attachments {
			part, err := mw.CreateFormFile(fmt.Sprintf("files[%d]", i), att.Filename)
			if err != nil {
				return 0, "", fmt.Errorf("create file part: %w", err)
			}
			if _, err := part.Write(att.Data); err != nil {
				return 0, "", fmt.Errorf("write file part: %w", err)
			}
		}
		if err := mw.Close(); err != nil {
			return 0, "", fmt.Errorf("finalize multipart: %w", err)
		}

		payload = &buf
		contentType = mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, payload)
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, "", fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, string(respBody), nil
}

// parseRetryAfter reads the receiver-specified retry_after seconds from a
// 429 body, falling back to the default when absent or unreadable.
func parseRetryAfter(body string) time.Duration {
	var reply struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal([]byte(body), &reply); err != nil || reply.RetryAfter <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(reply.RetryAfter * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func headString(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

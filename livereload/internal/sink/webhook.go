package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/hazyhaar/devlive/livereload/notify"
)

// Webhook POSTs each outcome as JSON to a URL, retrying with exponential
// backoff on transport errors and 5xx answers. 4xx answers are not retried.
type Webhook struct {
	url      string
	client   *http.Client
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n uint) WebhookOption {
	return func(w *Webhook) { w.attempts = n + 1 }
}

// WithWebhookDelay sets the initial backoff. Default: 1s.
func WithWebhookDelay(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.delay = d }
}

// WithWebhookClient sets a custom HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 4,
		delay:    time.Second,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, o notify.Outcome) error {
	body, err := notify.MarshalOutcome(&o)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	attempt := 0
	err = retry.New(
		retry.Attempts(w.attempts),
		retry.Delay(w.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		attempt++
		return w.post(ctx, body, attempt)
	})
	if err != nil {
		return fmt.Errorf("webhook: all retries exhausted: %w", err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("webhook: new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook: request failed", "attempt", attempt, "error", err)
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Unrecoverable(fmt.Errorf("webhook: status %d", resp.StatusCode))
	default:
		w.logger.Warn("webhook: bad status", "attempt", attempt, "status", resp.StatusCode)
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
}

func (w *Webhook) Close() error { return nil }

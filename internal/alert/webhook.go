package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Delivery defaults.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
	maxRetryAfter      = 30 * time.Second
)

// Sender delivers alert payloads to webhook endpoints. Server errors and
// 429 responses are retried with linear backoff; other 4xx responses fail
// immediately.
type Sender struct {
	Client      *http.Client
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultSender is used by Send and by dispatchers without their own sender.
var DefaultSender = &Sender{
	Client:      &http.Client{Timeout: DefaultTimeout},
	MaxAttempts: DefaultMaxAttempts,
	Backoff:     DefaultBackoff,
}

// Send posts event to cfg.URL with DefaultSender.
func Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	return DefaultSender.Send(ctx, cfg, event)
}

// Send posts event to cfg.URL in the configured format.
func (s *Sender) Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	attempts := max(s.MaxAttempts, 1)
	var lastErr error
	var wait time.Duration
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		wait = time.Duration(attempt) * s.Backoff

		retry, after, err := s.post(ctx, cfg, event, body)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		if after > 0 {
			wait = after
		}
		lastErr = err
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", attempts, lastErr)
}

// post makes one delivery attempt. It reports whether a failure is
// retryable and any Retry-After delay the server asked for.
func (s *Sender) post(ctx context.Context, cfg AlertConfig, event AlertEvent, body []byte) (bool, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "promptspeak-alert")
	if event.EventID != "" {
		req.Header.Set("X-PromptSpeak-Event-ID", event.EventID)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	client := s.Client
	if client == nil {
		client = DefaultSender.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return true, 0, err
	}
	_ = resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return false, 0, nil
	case code == http.StatusTooManyRequests:
		return true, retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("webhook throttled: HTTP %d", code)
	case code >= 400 && code < 500:
		return false, 0, fmt.Errorf("webhook rejected: HTTP %d", code)
	default:
		return true, 0, fmt.Errorf("webhook server error: HTTP %d", code)
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

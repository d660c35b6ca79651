package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// retryDelays are the backoff waits between POST attempts. Three attempts
// total; the last failure is not followed by a sleep.
var retryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// RetryClient POSTs JSON payloads with exponential backoff. Post reports
// success as a boolean and never panics across attempt boundaries; the caller
// decides what a false return means.
type RetryClient struct {
	httpClient *http.Client
	maxRetries int
	logger     *zap.Logger

	// sleep is replaceable so tests do not wait out the real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryClient creates a client with the default timeout and retry policy.
func NewRetryClient(logger *zap.Logger) *RetryClient {
	return &RetryClient{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		maxRetries: len(retryDelays),
		logger:     logger,
		sleep:      sleepCtx,
	}
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

// Post sends payload as JSON to url, retrying on failure. Returns true on the
// first 2xx response, false after exhausting all attempts. The backoff sleep
// is local to this call and never blocks other channels.
func (c *RetryClient) Post(ctx context.Context, url string, payload any, headers map[string]string) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to encode notification payload", zap.Error(err))
		return false
	}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.doPost(ctx, url, body, headers); err == nil {
			c.logger.Info("HTTP POST succeeded",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
			)
			return true
		} else {
			c.logger.Warn("HTTP POST failed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", c.maxRetries),
				zap.Error(err),
			)
		}

		if attempt < c.maxRetries-1 {
			if err := c.sleep(ctx, retryDelays[attempt]); err != nil {
				c.logger.Warn("retry backoff interrupted", zap.Error(err))
				return false
			}
		}
	}

	c.logger.Error("HTTP POST failed after all attempts",
		zap.String("url", url),
		zap.Int("attempts", c.maxRetries),
	)
	return false
}

func (c *RetryClient) doPost(ctx context.Context, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

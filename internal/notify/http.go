package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// HTTPChannel sends event payloads via HTTP POST to a configured URL, with
// optional per-channel headers (auth tokens, content negotiation).
type HTTPChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *RetryClient
	logger  *zap.Logger
}

// NewHTTPChannel creates an HTTP webhook channel.
func NewHTTPChannel(name, url string, headers map[string]string, client *RetryClient, logger *zap.Logger) *HTTPChannel {
	return &HTTPChannel{
		name:    name,
		url:     url,
		headers: headers,
		client:  client,
		logger:  logger,
	}
}

// Name implements Channel.
func (c *HTTPChannel) Name() string { return c.name }

// Send implements Channel. The retry policy lives in the client; this only
// translates its boolean outcome into the error the dispatcher expects.
func (c *HTTPChannel) Send(ctx context.Context, payload *Payload) error {
	c.logger.Info("sending HTTP notification",
		zap.String("channel", c.name),
		zap.String("url", c.url),
	)
	if !c.client.Post(ctx, c.url, payload, c.headers) {
		return fmt.Errorf("http channel %q: delivery failed after retries", c.name)
	}
	return nil
}

// Verify that HTTPChannel implements Channel interface
var _ Channel = (*HTTPChannel)(nil)

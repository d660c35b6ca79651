// Package notify fans job events out to configured notification channels.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Channel is a pluggable notification sink. Send returns an error on failure;
// the dispatcher isolates each channel so one failure never blocks another.
type Channel interface {
	// Name identifies the channel in logs and dispatch results.
	Name() string

	// Send delivers the payload.
	Send(ctx context.Context, payload *Payload) error
}

// ChannelConfig is one declarative channel entry from configuration.
type ChannelConfig struct {
	Type    string            `mapstructure:"type"`
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// channelBuilder constructs a channel from its config entry.
type channelBuilder func(cfg ChannelConfig, logger *zap.Logger) Channel

// channelRegistry maps channel types to builders. Registering a new channel
// type only requires adding an entry here.
var channelRegistry = map[string]channelBuilder{
	"http": func(cfg ChannelConfig, logger *zap.Logger) Channel {
		return NewHTTPChannel(cfg.Name, cfg.URL, cfg.Headers, NewRetryClient(logger), logger)
	},
}

// BuildChannels instantiates channels from a config list. Entries with an
// unknown type are skipped with a warning, not a fatal error.
func BuildChannels(configs []ChannelConfig, logger *zap.Logger) []Channel {
	channels := make([]Channel, 0, len(configs))
	for _, cfg := range configs {
		build, ok := channelRegistry[cfg.Type]
		if !ok {
			logger.Warn("unknown notification channel type, skipping",
				zap.String("type", cfg.Type),
				zap.String("name", cfg.Name),
			)
			continue
		}
		channels = append(channels, build(cfg, logger))
	}
	return channels
}

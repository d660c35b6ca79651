package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DispatchResult lists which channels accepted the payload and which failed.
type DispatchResult struct {
	Succeeded []string
	Failed    []string
}

// AllSucceeded is true iff no channel failed.
func (r *DispatchResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// Dispatcher broadcasts an event payload to every configured channel.
// Channels run concurrently and independently; one channel's failure neither
// prevents the others from being attempted nor escalates to the caller.
type Dispatcher struct {
	channels []Channel
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(channels []Channel, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logger:   logger,
	}
}

// NewDispatcherFromConfig builds channels from the declarative config list
// and wraps them in a dispatcher.
func NewDispatcherFromConfig(configs []ChannelConfig, logger *zap.Logger) *Dispatcher {
	return NewDispatcher(BuildChannels(configs, logger), logger)
}

// Dispatch sends the payload to all channels, fire-and-collect. No ordering
// between channels is guaranteed. Never returns an error: per-channel
// failures are recorded in the result and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *Payload) *DispatchResult {
	result := &DispatchResult{}
	if len(d.channels) == 0 {
		d.logger.Debug("no notification channels configured, skipping dispatch")
		return result
	}

	type outcome struct {
		name string
		err  error
	}
	outcomes := make([]outcome, len(d.channels))

	var wg sync.WaitGroup
	wg.Add(len(d.channels))
	for i, ch := range d.channels {
		go func(i int, ch Channel) {
			defer wg.Done()
			defer func() {
				// A panicking channel counts as failed, nothing more.
				if r := recover(); r != nil {
					d.logger.Error("notification channel panicked",
						zap.String("channel", ch.Name()),
						zap.Any("panic", r),
					)
					outcomes[i] = outcome{name: ch.Name(), err: errPanic}
				}
			}()
			outcomes[i] = outcome{name: ch.Name(), err: ch.Send(ctx, payload)}
		}(i, ch)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, o.name)
			d.logger.Error("notification channel failed",
				zap.String("channel", o.name),
				zap.Error(o.err),
			)
		} else {
			result.Succeeded = append(result.Succeeded, o.name)
			d.logger.Info("notification channel dispatched",
				zap.String("channel", o.name),
			)
		}
	}

	if !result.AllSucceeded() {
		d.logger.Warn("dispatch completed with failures",
			zap.Strings("succeeded", result.Succeeded),
			zap.Strings("failed", result.Failed),
		)
	}
	return result
}

var errPanic = &panicError{}

type panicError struct{}

func (*panicError) Error() string { return "channel panicked during send" }

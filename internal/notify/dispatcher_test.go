package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubChannel struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(context.Context, *Payload) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.err
}

type panicChannel struct{}

func (panicChannel) Name() string                        { return "panicky" }
func (panicChannel) Send(context.Context, *Payload) error { panic("boom") }

// TestDispatchIsolatesFailures verifies one channel failing never stops the
// others
func TestDispatchIsolatesFailures(t *testing.T) {
	logger := zaptest.NewLogger(t)
	okCh := &stubChannel{name: "webhook-a"}
	badCh := &stubChannel{name: "webhook-b", err: errors.New("503")}
	dispatcher := NewDispatcher([]Channel{okCh, badCh}, logger)

	result := dispatcher.Dispatch(context.Background(), &Payload{JobID: "job-1", Status: "completed"})

	assert.Equal(t, []string{"webhook-a"}, result.Succeeded)
	assert.Equal(t, []string{"webhook-b"}, result.Failed)
	assert.False(t, result.AllSucceeded())
	assert.Equal(t, 1, okCh.calls)
	assert.Equal(t, 1, badCh.calls)
}

// TestDispatchSurvivesPanic verifies a panicking channel counts as failed
func TestDispatchSurvivesPanic(t *testing.T) {
	logger := zaptest.NewLogger(t)
	okCh := &stubChannel{name: "webhook-a"}
	dispatcher := NewDispatcher([]Channel{panicChannel{}, okCh}, logger)

	result := dispatcher.Dispatch(context.Background(), &Payload{JobID: "job-1"})

	assert.Equal(t, []string{"webhook-a"}, result.Succeeded)
	assert.Equal(t, []string{"panicky"}, result.Failed)
}

// TestDispatchNoChannels verifies dispatch with nothing configured is a no-op
func TestDispatchNoChannels(t *testing.T) {
	dispatcher := NewDispatcher(nil, zaptest.NewLogger(t))
	result := dispatcher.Dispatch(context.Background(), &Payload{JobID: "job-1"})
	assert.True(t, result.AllSucceeded())
	assert.Empty(t, result.Succeeded)
}

// TestBuildChannels verifies unknown channel types are skipped, not fatal
func TestBuildChannels(t *testing.T) {
	logger := zaptest.NewLogger(t)
	channels := BuildChannels([]ChannelConfig{
		{Type: "http", Name: "primary", URL: "http://callbacks.test/hook"},
		{Type: "carrier-pigeon", Name: "legacy"},
		{Type: "http", Name: "secondary", URL: "http://callbacks.test/hook2"},
	}, logger)

	require.Len(t, channels, 2)
	assert.Equal(t, "primary", channels[0].Name())
	assert.Equal(t, "secondary", channels[1].Name())
}

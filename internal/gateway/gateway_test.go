package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qoze/internal/config"
	"qoze/internal/types"
)

// fakeProvider fails the first failCount Stream calls with failErr,
// then streams the scripted events.
type fakeProvider struct {
	failCount int32
	failErr   error
	events    []StreamEvent
	attempts  atomic.Int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	n := f.attempts.Add(1)
	if n <= f.failCount {
		return nil, f.failErr
	}
	out := make(chan StreamEvent, len(f.events))
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func doneEvents(text string) []StreamEvent {
	return []StreamEvent{
		{Type: EventTextDelta, TextDelta: text},
		{Type: EventUsage, Usage: &types.Usage{InputTokens: 10, OutputTokens: 5}},
		{Type: EventDone},
	}
}

func fastOptions(retries int) Options {
	return Options{MaxRetries: retries, BackoffBase: time.Millisecond}
}

func TestSendRetriesRateLimited(t *testing.T) {
	// RateLimited twice, then success: the retry is transparent and no
	// error surfaces to the caller.
	p := &fakeProvider{failCount: 2, failErr: fmt.Errorf("%w: 429", ErrRateLimited), events: doneEvents("hello")}
	g := New(p, fastOptions(3))

	resp, err := g.Complete(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, int32(3), p.attempts.Load())
}

func TestSendRateLimitedExhausted(t *testing.T) {
	p := &fakeProvider{failCount: 10, failErr: fmt.Errorf("%w: 429", ErrRateLimited)}
	g := New(p, fastOptions(2))

	_, err := g.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), p.attempts.Load(), "initial attempt plus two retries")
}

func TestSendAuthErrorNoRetry(t *testing.T) {
	p := &fakeProvider{failCount: 10, failErr: fmt.Errorf("%w: bad key", ErrAuth)}
	g := New(p, fastOptions(3))

	_, err := g.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(1), p.attempts.Load(), "auth errors must not be retried")
}

func TestSendTimeoutRetriedOnce(t *testing.T) {
	p := &fakeProvider{failCount: 10, failErr: fmt.Errorf("%w: dial", ErrProviderTimeout)}
	g := New(p, fastOptions(5))

	_, err := g.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderTimeout)
	assert.Equal(t, int32(2), p.attempts.Load(), "provider timeouts retry exactly once")
}

func TestSendNoRetryAfterFirstEvent(t *testing.T) {
	// A failure after events started flowing is terminal: the call may
	// have produced side effects downstream.
	p := &fakeProvider{events: []StreamEvent{
		{Type: EventTextDelta, TextDelta: "partial"},
		{Type: EventError, Err: errors.New("connection reset")},
	}}
	g := New(p, fastOptions(3))

	_, err := g.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), p.attempts.Load())
}

func TestCompleteAccumulates(t *testing.T) {
	p := &fakeProvider{events: []StreamEvent{
		{Type: EventTextDelta, TextDelta: "part one "},
		{Type: EventTextDelta, TextDelta: "part two"},
		{Type: EventToolCall, ToolCall: &types.ToolCall{ID: "t1", Name: "read_file"}},
		{Type: EventUsage, Usage: &types.Usage{InputTokens: 7, OutputTokens: 3}},
		{Type: EventDone},
	}}
	g := New(p, fastOptions(0))

	resp, err := g.Complete(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)
	assert.Equal(t, 7, resp.Usage.InputTokens)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, ErrAuth},
		{403, ErrAuth},
		{429, ErrRateLimited},
		{408, ErrProviderTimeout},
		{504, ErrProviderTimeout},
		{500, ErrRateLimited},
	}
	for _, tt := range tests {
		err := classifyStatus("test", tt.status, "body")
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

const anthropicSSE = `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":25,"cache_read_input_tokens":12}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"run_command"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"command\":"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"ls /tmp\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":18}}

event: message_stop
data: {"type":"message_stop"}

`

func TestAnthropicStreamNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, anthropicSSE)
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})

	events, err := client.Stream(context.Background(), &Request{
		Messages: []types.Message{{Role: types.RoleUser, Content: "list /tmp"}},
	})
	require.NoError(t, err)

	var collected []StreamEvent
	for ev := range events {
		collected = append(collected, ev)
	}

	require.Len(t, collected, 4)
	assert.Equal(t, EventTextDelta, collected[0].Type)
	assert.Equal(t, "Let me check.", collected[0].TextDelta)

	require.Equal(t, EventToolCall, collected[1].Type)
	assert.Equal(t, "toolu_1", collected[1].ToolCall.ID)
	assert.Equal(t, "run_command", collected[1].ToolCall.Name)
	assert.Equal(t, "ls /tmp", collected[1].ToolCall.Args["command"])

	require.Equal(t, EventUsage, collected[2].Type)
	assert.Equal(t, 25, collected[2].Usage.InputTokens)
	assert.Equal(t, 12, collected[2].Usage.CacheReadTokens)
	assert.Equal(t, 18, collected[2].Usage.OutputTokens)

	assert.Equal(t, EventDone, collected[3].Type)
}

func TestAnthropicStatusClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "bad", BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Stream(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrAuth)
}

func TestNewProviderSelectsProviderKey(t *testing.T) {
	// Only the configured provider's credential counts; a key for a
	// different provider must not satisfy the selected one.
	p, err := NewProvider(config.LLMConfig{Provider: "anthropic", Model: "m", AnthropicAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = NewProvider(config.LLMConfig{Provider: "openai", Model: "m", AnthropicAPIKey: "k"})
	require.NoError(t, err)
	_, err = p.Stream(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewProvider(config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)
}

func TestAnthropicNoAPIKey(t *testing.T) {
	client := NewAnthropicClient(AnthropicConfig{})
	_, err := client.Stream(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestMalformedToolInputDegradesToText(t *testing.T) {
	// A tool_use block whose input never becomes valid JSON must not
	// kill the session: the raw block comes back as plain text and the
	// stream still finishes normally.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t1","name":"x"}}

data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{not json"}}

data: {"type":"content_block_stop","index":0}

data: {"type":"message_stop"}

`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second})
	events, err := client.Stream(context.Background(), &Request{})
	require.NoError(t, err)

	var text string
	var sawError, sawToolCall bool
	var last StreamEvent
	for ev := range events {
		last = ev
		switch ev.Type {
		case EventTextDelta:
			text += ev.TextDelta
		case EventError:
			sawError = true
		case EventToolCall:
			sawToolCall = true
		}
	}
	assert.False(t, sawError, "malformed tool input must not be a stream error")
	assert.False(t, sawToolCall, "no tool call should be emitted from undecodable input")
	assert.Contains(t, text, "{not json")
	assert.Equal(t, EventDone, last.Type)
}

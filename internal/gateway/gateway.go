package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"qoze/internal/logging"
	"qoze/internal/types"
)

// Gateway fronts a provider adapter with retry, backoff and a
// process-wide per-provider rate gate. One Gateway is shared by all
// sessions so provider rate limits are respected globally; everything
// else is session-local.
type Gateway struct {
	provider Provider

	maxRetries  int
	backoffBase time.Duration

	gatesMu sync.Mutex
	gates   map[string]*rate.Limiter
	rps     float64
}

// Options configures retry and throttling behavior.
type Options struct {
	// MaxRetries caps transparent retries on transient failures.
	MaxRetries int

	// BackoffBase is the first retry delay; doubles per attempt.
	BackoffBase time.Duration

	// RequestsPerSecond throttles each provider across all sessions.
	// Zero disables throttling.
	RequestsPerSecond float64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		BackoffBase:       time.Second,
		RequestsPerSecond: 2,
	}
}

// New creates a Gateway over the given provider adapter.
func New(provider Provider, opts Options) *Gateway {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	return &Gateway{
		provider:    provider,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		gates:       make(map[string]*rate.Limiter),
		rps:         opts.RequestsPerSecond,
	}
}

// ProviderName returns the active provider id.
func (g *Gateway) ProviderName() string { return g.provider.Name() }

// gate returns the process-wide limiter for a provider, creating it on
// first use.
func (g *Gateway) gate(name string) *rate.Limiter {
	g.gatesMu.Lock()
	defer g.gatesMu.Unlock()
	if lim, ok := g.gates[name]; ok {
		return lim
	}
	limit := rate.Inf
	if g.rps > 0 {
		limit = rate.Limit(g.rps)
	}
	lim := rate.NewLimiter(limit, 1)
	g.gates[name] = lim
	return lim
}

// Send streams a model call. Transient failures that occur before any
// event is delivered are retried with capped exponential backoff;
// provider timeouts are retried once; auth errors surface immediately.
// Once the first event flows, the call is never retried (downstream
// side effects may exist).
func (g *Gateway) Send(ctx context.Context, req *Request) <-chan StreamEvent {
	out := make(chan StreamEvent, streamBufferSize)

	go func() {
		defer close(out)

		var lastErr error
		timeoutRetried := false

		for attempt := 0; attempt <= g.maxRetries; attempt++ {
			if attempt > 0 {
				delay := g.backoffBase << uint(attempt-1)
				logging.GatewayWarn("[%s] retrying in %v (attempt %d/%d): %v",
					g.provider.Name(), delay, attempt, g.maxRetries, lastErr)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					out <- StreamEvent{Type: EventError, Err: ctx.Err()}
					return
				}
			}

			if err := g.gate(g.provider.Name()).Wait(ctx); err != nil {
				out <- StreamEvent{Type: EventError, Err: err}
				return
			}

			start := time.Now()
			events, err := g.provider.Stream(ctx, req)
			if err != nil {
				lastErr = err
				switch {
				case errors.Is(err, ErrAuth), errors.Is(err, ErrNoAPIKey):
					logging.GatewayError("[%s] fatal auth error: %v", g.provider.Name(), err)
					out <- StreamEvent{Type: EventError, Err: err}
					return
				case errors.Is(err, ErrRateLimited):
					continue
				case errors.Is(err, ErrProviderTimeout):
					if timeoutRetried {
						out <- StreamEvent{Type: EventError, Err: err}
						return
					}
					timeoutRetried = true
					continue
				default:
					out <- StreamEvent{Type: EventError, Err: err}
					return
				}
			}

			// Events are flowing: pipe through, no further retries.
			g.pipe(ctx, events, out, start)
			return
		}

		logging.GatewayError("[%s] max retries exceeded: %v", g.provider.Name(), lastErr)
		out <- StreamEvent{Type: EventError, Err: lastErr}
	}()

	return out
}

func (g *Gateway) pipe(ctx context.Context, in <-chan StreamEvent, out chan<- StreamEvent, start time.Time) {
	for ev := range in {
		select {
		case out <- ev:
		case <-ctx.Done():
			out <- StreamEvent{Type: EventError, Err: ctx.Err()}
			return
		}
		if ev.Type == EventDone {
			logging.Gateway("[%s] stream completed in %v", g.provider.Name(), time.Since(start))
			return
		}
		if ev.Type == EventError {
			logging.GatewayError("[%s] stream failed after %v: %v", g.provider.Name(), time.Since(start), ev.Err)
			return
		}
	}
	// Adapter closed without a terminal event; treat as done.
	out <- StreamEvent{Type: EventDone}
}

// Complete accumulates a full response for callers that do not need
// incremental delivery (context summarization, one-shot prompts).
func (g *Gateway) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp := &Response{}
	var text strings.Builder

	for ev := range g.Send(ctx, req) {
		switch ev.Type {
		case EventTextDelta:
			text.WriteString(ev.TextDelta)
		case EventToolCall:
			resp.ToolCalls = append(resp.ToolCalls, *ev.ToolCall)
		case EventUsage:
			resp.Usage.Add(*ev.Usage)
		case EventError:
			return nil, ev.Err
		case EventDone:
			resp.Text = strings.TrimSpace(text.String())
			return resp, nil
		}
	}
	resp.Text = strings.TrimSpace(text.String())
	return resp, nil
}

// Summarize asks the model to compress conversation history into a
// compact synthetic message. Implements the context manager's
// Summarizer contract.
func (g *Gateway) Summarize(ctx context.Context, text string) (string, error) {
	req := &Request{
		System: "Summarize the following conversation excerpt. Preserve decisions, file paths, command results and open tasks. Be terse; output plain text only.",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: text},
		},
		MaxTokens:   1024,
		Temperature: 0.1,
	}
	resp, err := g.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

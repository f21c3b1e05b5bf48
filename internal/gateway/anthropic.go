package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"qoze/internal/logging"
	"qoze/internal/types"
)

// AnthropicClient implements Provider for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// AnthropicConfig holds configuration for the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-sonnet-4-20250514",
		Timeout: 120 * time.Second,
	}
}

// NewAnthropicClient creates a new Anthropic adapter.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicConfig("").BaseURL
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider id.
func (c *AnthropicClient) Name() string { return "anthropic" }

// anthropicMessage supports both plain text and structured blocks.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// buildAnthropicMessages converts the internal history to the Messages
// API shape: assistant tool calls become tool_use blocks, tool results
// become tool_result blocks inside a user message.
func buildAnthropicMessages(msgs []types.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropicMessage{Role: "assistant", Content: m.Content})
				continue
			}
			blocks := make([]anthropicContentBlock, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Args,
				})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
		case types.RoleTool:
			out = append(out, anthropicMessage{Role: "user", Content: []anthropicContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}}})
		default:
			out = append(out, anthropicMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}

func (c *AnthropicClient) buildRequest(req *Request, stream bool) *anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	tools := make([]anthropicTool, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return &anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    buildAnthropicMessages(req.Messages),
		Tools:       tools,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// Stream sends the request with streaming enabled and normalizes the
// SSE events. Text deltas flow through immediately; tool_use input is
// buffered until content_block_stop so only complete calls are emitted.
func (c *AnthropicClient) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	jsonData, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classifyStatus(c.Name(), resp.StatusCode, string(body))
	}

	events := make(chan StreamEvent, streamBufferSize)
	go c.readStream(ctx, resp, events)
	return events, nil
}

// anthropicStreamEvent is the union of SSE payloads we care about.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`

	Message *struct {
		Usage struct {
			InputTokens            int `json:"input_tokens"`
			CacheReadInputTokens   int `json:"cache_read_input_tokens"`
			CacheCreationInputToks int `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	} `json:"message,omitempty"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// pendingToolUse accumulates a tool_use block across input_json_deltas.
type pendingToolUse struct {
	id   string
	name string
	json bytes.Buffer
}

func (c *AnthropicClient) readStream(ctx context.Context, resp *http.Response, events chan<- StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	usage := types.Usage{}
	pending := make(map[int]*pendingToolUse)
	sc := newSSEScanner(resp.Body)

	for {
		data, ok := sc.Next()
		if !ok {
			break
		}

		var evt anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			// Malformed frame: skip rather than abort the stream.
			logging.GatewayDebug("[anthropic] skipping undecodable frame: %v", err)
			continue
		}

		if evt.Error != nil {
			emit(StreamEvent{Type: EventError, Err: fmt.Errorf("anthropic stream error: %s", evt.Error.Message)})
			return
		}

		switch evt.Type {
		case "message_start":
			if evt.Message != nil {
				usage.InputTokens = evt.Message.Usage.InputTokens
				usage.CacheReadTokens = evt.Message.Usage.CacheReadInputTokens
			}
		case "content_block_start":
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				pending[evt.Index] = &pendingToolUse{id: evt.ContentBlock.ID, name: evt.ContentBlock.Name}
			}
		case "content_block_delta":
			if evt.Delta == nil {
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				if evt.Delta.Text != "" && !emit(StreamEvent{Type: EventTextDelta, TextDelta: evt.Delta.Text}) {
					return
				}
			case "input_json_delta":
				if p, ok := pending[evt.Index]; ok {
					p.json.WriteString(evt.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			p, ok := pending[evt.Index]
			if !ok {
				continue
			}
			delete(pending, evt.Index)

			args := map[string]any{}
			if p.json.Len() > 0 {
				if err := json.Unmarshal(p.json.Bytes(), &args); err != nil {
					// Undecodable tool input is not fatal; surface the
					// raw block as text so the turn reads as a plain
					// answer instead of aborting the session.
					logging.GatewayWarn("[anthropic] undecodable tool input for %s: %v", p.name, err)
					if !emit(StreamEvent{Type: EventTextDelta, TextDelta: p.json.String()}) {
						return
					}
					continue
				}
			}
			id := p.id
			if id == "" {
				id = uuid.NewString()
			}
			if !emit(StreamEvent{Type: EventToolCall, ToolCall: &types.ToolCall{ID: id, Name: p.name, Args: args}}) {
				return
			}
		case "message_delta":
			if evt.Usage != nil {
				usage.OutputTokens = evt.Usage.OutputTokens
			}
		case "message_stop":
			emit(StreamEvent{Type: EventUsage, Usage: &usage})
			emit(StreamEvent{Type: EventDone})
			return
		}
	}

	if err := sc.Err(); err != nil {
		emit(StreamEvent{Type: EventError, Err: fmt.Errorf("stream read error: %w", err)})
		return
	}
	// Stream ended without message_stop; still report what we have.
	emit(StreamEvent{Type: EventUsage, Usage: &usage})
	emit(StreamEvent{Type: EventDone})
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"qoze/internal/logging"
	"qoze/internal/types"
)

// OpenAIClient implements Provider for the OpenAI Chat Completions API
// and any OpenAI-compatible endpoint (set BaseURL to point elsewhere).
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 120 * time.Second,
	}
}

// NewOpenAIClient creates a new OpenAI adapter.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIConfig("").BaseURL
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider id.
func (c *OpenAIClient) Name() string { return "openai" }

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	Index    int                `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIRequest struct {
	Model         string               `json:"model"`
	Messages      []openAIMessage      `json:"messages"`
	Tools         []openAITool         `json:"tools,omitempty"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   float64              `json:"temperature,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
}

// buildOpenAIMessages converts the internal history to the chat
// completions shape. The system prefix travels as the first message.
func buildOpenAIMessages(req *Request) []openAIMessage {
	out := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msg := openAIMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == types.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func (c *OpenAIClient) buildRequest(req *Request) *openAIRequest {
	tools := make([]openAITool, len(req.Tools))
	for i, t := range req.Tools {
		tools[i].Type = "function"
		tools[i].Function.Name = t.Name
		tools[i].Function.Description = t.Description
		tools[i].Function.Parameters = t.InputSchema
	}
	return &openAIRequest{
		Model:         c.model,
		Messages:      buildOpenAIMessages(req),
		Tools:         tools,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: &openAIStreamOptions{IncludeUsage: true},
	}
}

// Stream sends the request with streaming enabled. Tool call arguments
// arrive as partial JSON across chunks keyed by index; they are
// buffered and emitted as complete calls at finish.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	jsonData, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type pendingOpenAICall struct {
	id   string
	name string
	args bytes.Buffer
}

func (c *OpenAIClient) readStream(ctx context.Context, resp *http.Response, events chan<- StreamEvent) {
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
	pending := make(map[int]*pendingOpenAICall)
	sc := newSSEScanner(resp.Body)

	flushCalls := func() bool {
		indexes := make([]int, 0, len(pending))
		for i := range pending {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			p := pending[i]
			args := map[string]any{}
			if p.args.Len() > 0 {
				if err := json.Unmarshal(p.args.Bytes(), &args); err != nil {
					// Undecodable arguments degrade to text rather than
					// aborting the stream.
					logging.GatewayWarn("[openai] undecodable tool arguments for %s: %v", p.name, err)
					if !emit(StreamEvent{Type: EventTextDelta, TextDelta: p.args.String()}) {
						return false
					}
					continue
				}
			}
			id := p.id
			if id == "" {
				id = uuid.NewString()
			}
			if !emit(StreamEvent{Type: EventToolCall, ToolCall: &types.ToolCall{ID: id, Name: p.name, Args: args}}) {
				return false
			}
		}
		pending = make(map[int]*pendingOpenAICall)
		return true
	}

	for {
		data, ok := sc.Next()
		if !ok {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logging.GatewayDebug("[openai] skipping undecodable frame: %v", err)
			continue
		}
		if chunk.Error != nil {
			emit(StreamEvent{Type: EventError, Err: fmt.Errorf("openai stream error: %s", chunk.Error.Message)})
			return
		}
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !emit(StreamEvent{Type: EventTextDelta, TextDelta: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			p, ok := pending[tc.Index]
			if !ok {
				p = &pendingOpenAICall{}
				pending[tc.Index] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args.WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason != "" {
			if !flushCalls() {
				return
			}
		}
	}

	if err := sc.Err(); err != nil {
		emit(StreamEvent{Type: EventError, Err: fmt.Errorf("stream read error: %w", err)})
		return
	}
	if !flushCalls() {
		return
	}
	emit(StreamEvent{Type: EventUsage, Usage: &usage})
	emit(StreamEvent{Type: EventDone})
}

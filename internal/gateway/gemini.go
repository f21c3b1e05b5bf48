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

// GeminiClient implements Provider for the Gemini REST API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// GeminiConfig holds configuration for the Gemini adapter.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   "gemini-2.0-flash",
		Timeout: 120 * time.Second,
	}
}

// NewGeminiClient creates a new Gemini adapter.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiConfig("").BaseURL
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider id.
func (c *GeminiClient) Name() string { return "gemini" }

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	Tools             []geminiTool           `json:"tools,omitempty"`
}

// callNames tracks tool-call id -> name so functionResponse parts can
// name the function a tool message answers (Gemini keys results by
// function name, not call id).
func callNames(msgs []types.Message) map[string]string {
	names := make(map[string]string)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			names[tc.ID] = tc.Name
		}
	}
	return names
}

// buildGeminiContents converts the internal history to Gemini contents.
// Assistant becomes "model"; tool results become functionResponse parts
// inside a user content entry.
func buildGeminiContents(msgs []types.Message) []geminiContent {
	names := callNames(msgs)
	out := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleAssistant:
			parts := make([]geminiPart, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Args}})
			}
			out = append(out, geminiContent{Role: "model", Parts: parts})
		case types.RoleTool:
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResponse{
					Name:     names[m.ToolCallID],
					Response: map[string]any{"content": m.Content},
				},
			}}})
		default:
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	return out
}

func (c *GeminiClient) buildRequest(req *Request) *geminiRequest {
	g := &geminiRequest{
		Contents: buildGeminiContents(req.Messages),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		g.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}
		}
		g.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return g
}

// Stream calls streamGenerateContent with alt=sse. Gemini delivers
// function calls whole, so no buffering is needed; ids are generated
// locally for result re-joining.
func (c *GeminiClient) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	jsonData, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		CachedContentTokens  int `json:"cachedContentTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *GeminiClient) readStream(ctx context.Context, resp *http.Response, events chan<- StreamEvent) {
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
	sc := newSSEScanner(resp.Body)

	for {
		data, ok := sc.Next()
		if !ok {
			break
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logging.GatewayDebug("[gemini] skipping undecodable frame: %v", err)
			continue
		}
		if chunk.Error != nil {
			emit(StreamEvent{Type: EventError, Err: fmt.Errorf("gemini stream error (%d): %s", chunk.Error.Code, chunk.Error.Message)})
			return
		}
		if chunk.UsageMetadata != nil {
			usage.InputTokens = chunk.UsageMetadata.PromptTokenCount
			usage.OutputTokens = chunk.UsageMetadata.CandidatesTokenCount
			usage.CacheReadTokens = chunk.UsageMetadata.CachedContentTokens
		}

		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					if !emit(StreamEvent{Type: EventTextDelta, TextDelta: part.Text}) {
						return
					}
				}
				if part.FunctionCall != nil {
					call := &types.ToolCall{
						ID:   uuid.NewString(),
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					}
					if call.Args == nil {
						call.Args = map[string]any{}
					}
					if !emit(StreamEvent{Type: EventToolCall, ToolCall: call}) {
						return
					}
				}
			}
		}
	}

	if err := sc.Err(); err != nil {
		emit(StreamEvent{Type: EventError, Err: fmt.Errorf("stream read error: %w", err)})
		return
	}
	emit(StreamEvent{Type: EventUsage, Usage: &usage})
	emit(StreamEvent{Type: EventDone})
}

// Package research provides the information-retrieval tool family:
// web search, HTTP fetch and headless-browser extraction. All tools are
// read-only and parallel-class.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qoze/internal/logging"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// tavilyEndpoint is the Tavily search API. Variable so tests can point
// it at a stub server.
var tavilyEndpoint = "https://api.tavily.com/search"

// searchClient is shared by all web_search executions.
var searchClient = &http.Client{Timeout: 30 * time.Second}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// WebSearchTool returns the Tavily-backed web search tool.
func WebSearchTool(apiKey string) *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web for up-to-date information; returns titles, URLs and content snippets",
		Concurrency: tools.ConcurrencyParallel,
		Timeout:     45 * time.Second,
		Execute: func(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
			return executeWebSearch(ctx, apiKey, args)
		},
		Schema: tools.Schema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of results (default: 5)",
					Default:     5,
				},
			},
		},
	}
}

func executeWebSearch(ctx context.Context, apiKey string, args map[string]any) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("search API key not configured")
	}

	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	maxResults := 5
	if n, ok := asInt(args["max_results"]); ok && n > 0 {
		maxResults = n
	}

	logging.ToolsDebug("web_search: query=%q max_results=%d", query, maxResults)

	body, err := json.Marshal(tavilyRequest{
		APIKey:        apiKey,
		Query:         query,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tavilyEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := searchClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result tavilyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var out strings.Builder
	if result.Answer != "" {
		fmt.Fprintf(&out, "Answer: %s\n\n", result.Answer)
	}
	if len(result.Results) == 0 {
		out.WriteString("no results")
		return out.String(), nil
	}
	out.WriteString("Results:\n")
	for i, r := range result.Results {
		fmt.Fprintf(&out, "\n%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Content)
	}
	return out.String(), nil
}

// asInt normalizes JSON-decoded numbers (float64) and native ints.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

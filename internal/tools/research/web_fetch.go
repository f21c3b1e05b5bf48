package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"qoze/internal/logging"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// maxFetchBytes caps fetched page content fed back into the context.
const maxFetchBytes = 100_000

var fetchClient = &http.Client{Timeout: 30 * time.Second}

var blankRe = regexp.MustCompile(`\n{3,}`)

// WebFetchTool returns a tool that fetches a URL over HTTP. HTML is
// reduced to readable text; JavaScript-rendered pages need the browser
// tools instead.
func WebFetchTool() *tools.Tool {
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a URL over HTTP and return its content as readable text",
		Concurrency: tools.ConcurrencyParallel,
		Timeout:     45 * time.Second,
		Execute:     executeWebFetch,
		Schema: tools.Schema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "The URL to fetch (http or https)",
				},
				"raw": {
					Type:        "boolean",
					Description: "Return the raw body without HTML-to-text reduction (default: false)",
					Default:     false,
				},
			},
		},
	}
}

func executeWebFetch(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("url must be http or https")
	}
	raw, _ := args["raw"].(bool)

	logging.ToolsDebug("web_fetch: url=%s raw=%v", url, raw)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "qoze-agent/1.0")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	truncated := len(body) > maxFetchBytes
	if truncated {
		body = body[:maxFetchBytes]
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")
	if !raw && strings.Contains(contentType, "html") {
		content = htmlToText(content)
	}
	if truncated {
		content += "\n...[truncated]"
	}

	if resp.StatusCode != http.StatusOK {
		return content, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	return content, nil
}

// htmlToText reduces parsed HTML to readable text. Script, style and
// page-chrome elements are dropped; block elements break lines.
// JavaScript-rendered pages need the browser tools instead.
func htmlToText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}

	var sb strings.Builder
	extractText(doc, &sb, 0)

	lines := strings.Split(sb.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := blankRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer":
			return
		case "br":
			sb.WriteString("\n")
		case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n")
		}
	}
}

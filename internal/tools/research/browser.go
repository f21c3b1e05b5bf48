package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"qoze/internal/browser"
	"qoze/internal/logging"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// One browser instance serves all sessions in the process.
var (
	browserMgr     *browser.Manager
	browserMgrOnce sync.Once
)

func manager() *browser.Manager {
	browserMgrOnce.Do(func() {
		browserMgr = browser.NewManager(browser.DefaultConfig())
	})
	return browserMgr
}

// ShutdownBrowser closes the shared browser if one was started.
func ShutdownBrowser() error {
	if browserMgr == nil {
		return nil
	}
	return browserMgr.Shutdown()
}

// BrowserNavigateTool returns a tool that loads a page in headless
// Chrome and returns its rendered text. Use for JavaScript-heavy pages
// that web_fetch cannot read.
func BrowserNavigateTool() *tools.Tool {
	return &tools.Tool{
		Name:        "browser_navigate",
		Description: "Load a URL in a headless browser and return the rendered page text (handles JavaScript)",
		Concurrency: tools.ConcurrencyParallel,
		Timeout:     90 * time.Second,
		Execute:     executeBrowserNavigate,
		Schema: tools.Schema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "The URL to load",
				},
			},
		},
	}
}

func executeBrowserNavigate(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return "", fmt.Errorf("url is required")
	}

	logging.Browser("navigate: %s", url)

	page, err := manager().OpenPage(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()

	title, _ := page.Eval("() => document.title")
	body, err := page.Eval("() => document.body ? document.body.innerText : ''")
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}

	text := body.Value.Str()
	if len(text) > maxFetchBytes {
		text = text[:maxFetchBytes] + "\n...[truncated]"
	}

	var out strings.Builder
	if title != nil && title.Value.Str() != "" {
		fmt.Fprintf(&out, "Title: %s\n\n", title.Value.Str())
	}
	out.WriteString(text)
	return out.String(), nil
}

// BrowserExtractTool returns a tool that extracts matching elements
// from a rendered page by CSS selector.
func BrowserExtractTool() *tools.Tool {
	return &tools.Tool{
		Name:        "browser_extract",
		Description: "Load a URL in a headless browser and extract text of elements matching a CSS selector",
		Concurrency: tools.ConcurrencyParallel,
		Timeout:     90 * time.Second,
		Execute:     executeBrowserExtract,
		Schema: tools.Schema{
			Required: []string{"url", "selector"},
			Properties: map[string]tools.Property{
				"url": {
					Type:        "string",
					Description: "The URL to load",
				},
				"selector": {
					Type:        "string",
					Description: "CSS selector for the elements to extract",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of elements to return (default: 20)",
					Default:     20,
				},
			},
		},
	}
}

func executeBrowserExtract(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	selector, _ := args["selector"].(string)
	if url == "" || selector == "" {
		return "", fmt.Errorf("url and selector are required")
	}
	limit := 20
	if n, ok := asInt(args["limit"]); ok && n > 0 {
		limit = n
	}

	logging.Browser("extract: %s selector=%q", url, selector)

	page, err := manager().OpenPage(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()

	elements, err := page.Elements(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if len(elements) == 0 {
		return "no elements matched", nil
	}

	var out strings.Builder
	for i, el := range elements {
		if i >= limit {
			fmt.Fprintf(&out, "...[stopped after %d elements, %d matched]\n", limit, len(elements))
			break
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&out, "%d. %s\n", i+1, text)
	}
	result := out.String()
	if len(result) > maxFetchBytes {
		result = result[:maxFetchBytes] + "\n...[truncated]"
	}
	return result, nil
}

package research

import "qoze/internal/tools"

// RegisterAll registers the research tools with the given registry.
// tavilyKey may be empty; web_search then fails with a clear error at
// call time rather than hiding the tool from the model.
func RegisterAll(registry *tools.Registry, tavilyKey string) error {
	allTools := []*tools.Tool{
		WebSearchTool(tavilyKey),
		WebFetchTool(),
		BrowserNavigateTool(),
		BrowserExtractTool(),
	}
	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

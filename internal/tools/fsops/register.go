package fsops

import "qoze/internal/tools"

// RegisterAll registers the filesystem tools with the given registry.
func RegisterAll(registry *tools.Registry) error {
	allTools := []*tools.Tool{
		ReadFileTool(),
		WriteFileTool(),
		EditFileTool(),
		ListFilesTool(),
		GlobTool(),
		GrepTool(),
	}
	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

package shell

import "qoze/internal/tools"

// RegisterAll registers the shell tools with the given registry.
func RegisterAll(registry *tools.Registry) error {
	return registry.Register(RunCommandTool())
}

// Package fsops provides the filesystem tool family. All paths are
// resolved through the session sandbox; reads are parallel-class,
// writes are serial.
package fsops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"qoze/internal/logging"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// maxReadBytes caps file reads fed back into the context.
const maxReadBytes = 200_000

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file, optionally a line range",
		Concurrency: tools.ConcurrencyParallel,
		Execute:     executeReadFile,
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to read",
				},
				"start_line": {
					Type:        "integer",
					Description: "Starting line number (1-indexed, optional)",
				},
				"end_line": {
					Type:        "integer",
					Description: "Ending line number (inclusive, optional)",
				},
			},
		},
	}
}

func executeReadFile(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	resolved, err := tools.ResolvePath(sess, path)
	if err != nil {
		return "", err
	}

	logging.ToolsDebug("read_file: path=%s", resolved)

	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	result := string(content)

	startLine, hasStart := asInt(args["start_line"])
	endLine, hasEnd := asInt(args["end_line"])
	if hasStart || hasEnd {
		lines := strings.Split(result, "\n")
		if !hasStart || startLine < 1 {
			startLine = 1
		}
		if !hasEnd || endLine > len(lines) {
			endLine = len(lines)
		}
		if startLine > endLine {
			return "", fmt.Errorf("start_line %d is past end_line %d", startLine, endLine)
		}
		result = strings.Join(lines[startLine-1:endLine], "\n")
	}

	if len(result) > maxReadBytes {
		result = result[:maxReadBytes] + "\n...[truncated]"
	}
	return result, nil
}

// WriteFileTool returns a tool for writing file contents.
func WriteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories as needed",
		Concurrency: tools.ConcurrencySerial,
		Execute:     executeWriteFile,
		Schema: tools.Schema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to write",
				},
				"content": {
					Type:        "string",
					Description: "The content to write",
				},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	resolved, err := tools.ResolvePath(sess, path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logging.Tools("write_file: %s (%d bytes)", resolved, len(content))
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool returns a tool for exact string replacement in a file.
func EditFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "edit_file",
		Description: "Replace an exact string in a file. The old string must appear exactly once unless replace_all is set",
		Concurrency: tools.ConcurrencySerial,
		Execute:     executeEditFile,
		Schema: tools.Schema{
			Required: []string{"path", "old_string", "new_string"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to edit",
				},
				"old_string": {
					Type:        "string",
					Description: "The exact text to replace",
				},
				"new_string": {
					Type:        "string",
					Description: "The replacement text",
				},
				"replace_all": {
					Type:        "boolean",
					Description: "Replace every occurrence (default: false)",
					Default:     false,
				},
			},
		},
	}
}

func executeEditFile(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	if oldStr == "" {
		return "", fmt.Errorf("old_string is required")
	}
	if oldStr == newStr {
		return "", fmt.Errorf("old_string and new_string are identical")
	}

	resolved, err := tools.ResolvePath(sess, path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)

	count := strings.Count(content, oldStr)
	if count == 0 {
		return "", fmt.Errorf("old_string not found in %s", path)
	}
	if count > 1 && !replaceAll {
		return "", fmt.Errorf("old_string appears %d times in %s; pass replace_all or make it unique", count, path)
	}

	if replaceAll {
		content = strings.ReplaceAll(content, oldStr, newStr)
	} else {
		content = strings.Replace(content, oldStr, newStr, 1)
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	replaced := 1
	if replaceAll {
		replaced = count
	}
	logging.Tools("edit_file: %s (%d replacement(s))", resolved, replaced)
	return fmt.Sprintf("replaced %d occurrence(s) in %s", replaced, path), nil
}

// ListFilesTool returns a tool for listing directory contents.
func ListFilesTool() *tools.Tool {
	return &tools.Tool{
		Name:        "list_files",
		Description: "List files and directories at a path",
		Concurrency: tools.ConcurrencyParallel,
		Execute:     executeListFiles,
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The directory to list",
				},
			},
		},
	}
}

func executeListFiles(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	resolved, err := tools.ResolvePath(sess, path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(names, "\n"), nil
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

package session

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// Directory tree limits for the system preamble. The tree orients the
// model without spending the budget on large repositories.
const (
	treeMaxDepth = 3
	treeMaxBytes = 3000
)

var treeSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".qoze":        true,
	"__pycache__":  true,
	".venv":        true,
}

// buildPreamble composes the session system prompt: agent identity,
// host environment and a capped directory tree. Stable for the
// lifetime of a session so the prompt prefix stays cacheable.
func buildPreamble(workDir string) string {
	hostname, _ := os.Hostname()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "unknown"
	}
	home, _ := os.UserHomeDir()

	var b strings.Builder
	b.WriteString(`You are a terminal-resident AI agent running on the user's machine.
Use the available tools to complete the user's task.

## Working principles
- Never invent content; verify with tools before asserting.
- Batch related shell operations into one command where safe.
- Read the relevant portion of a file instead of the whole file.
- Prefer targeted edits over full-file rewrites.
- Assess risk before running commands that change system state.
- Prefer commands appropriate for the host operating system.
`)

	fmt.Fprintf(&b, "\n## Host environment\n")
	fmt.Fprintf(&b, "OS: %s (%s)\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "Hostname: %s\n", hostname)
	fmt.Fprintf(&b, "User: %s\n", username)
	fmt.Fprintf(&b, "Shell: %s\n", shell)
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "Home directory: %s\n", home)

	fmt.Fprintf(&b, "\n## Directory structure\n%s\n", directoryTree(workDir))
	return b.String()
}

// directoryTree renders workDir to a bounded depth and size.
func directoryTree(root string) string {
	var b strings.Builder
	truncated := false

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() {
			if treeSkipDirs[d.Name()] || depth >= treeMaxDepth {
				return filepath.SkipDir
			}
		}
		if b.Len() >= treeMaxBytes {
			truncated = true
			return filepath.SkipAll
		}
		indent := strings.Repeat("  ", depth)
		name := d.Name()
		if d.IsDir() {
			name += "/"
		}
		fmt.Fprintf(&b, "%s%s\n", indent, name)
		return nil
	})

	if b.Len() == 0 {
		return "(empty or unreadable)"
	}
	if truncated {
		b.WriteString("... (truncated; explore with list_files)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

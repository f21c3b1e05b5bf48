// Package shell provides the command execution tool.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"qoze/internal/logging"
	"qoze/internal/tools"
	"qoze/internal/types"
)

// maxOutputBytes caps tool output so one command cannot blow the
// context budget.
const maxOutputBytes = 50000

// RunCommandTool returns the shell execution tool. Commands run inside
// the session sandbox; the working directory may not escape it.
// Mutating by nature, so serial.
func RunCommandTool() *tools.Tool {
	return &tools.Tool{
		Name:        "run_command",
		Description: "Execute a shell command in the session working directory and return its output",
		Concurrency: tools.ConcurrencySerial,
		Execute:     executeRunCommand,
		Schema: tools.Schema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute",
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory for the command (default: session working directory)",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 60)",
					Default:     60,
				},
			},
		},
	}
}

func executeRunCommand(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return "", fmt.Errorf("command is required")
	}

	workDir := sess.WorkDir
	if wd, ok := args["working_dir"].(string); ok && wd != "" {
		resolved, err := tools.ResolvePath(sess, wd)
		if err != nil {
			return "", err
		}
		workDir = resolved
	}

	timeout := 60 * time.Second
	if t, ok := asInt(args["timeout_seconds"]); ok && t > 0 {
		timeout = time.Duration(t) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.ToolsDebug("run_command: cmd=%s dir=%s timeout=%v", command, workDir, timeout)

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n...[truncated]"
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return output, context.DeadlineExceeded
		}
		logging.Tools("run_command failed: %s (%v)", command, err)
		return output, fmt.Errorf("command failed: %w", err)
	}

	logging.Tools("run_command completed: %s (%d bytes output)", command, len(output))
	return output, nil
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

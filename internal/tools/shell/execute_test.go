//go:build !windows

package shell

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qoze/internal/types"
)

func testSession(t *testing.T) *types.SessionContext {
	t.Helper()
	dir := t.TempDir()
	return &types.SessionContext{SessionID: "test", WorkDir: dir, SandboxRoot: dir}
}

func TestRunCommand(t *testing.T) {
	out, err := executeRunCommand(context.Background(), testSession(t), map[string]any{
		"command": "echo hello",
	})
	if err != nil {
		t.Fatalf("executeRunCommand failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestRunCommandMergesStderr(t *testing.T) {
	out, err := executeRunCommand(context.Background(), testSession(t), map[string]any{
		"command": "echo out; echo err 1>&2",
	})
	if err != nil {
		t.Fatalf("executeRunCommand failed: %v", err)
	}
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Errorf("stderr not merged into output: %q", out)
	}
}

func TestRunCommandFailure(t *testing.T) {
	out, err := executeRunCommand(context.Background(), testSession(t), map[string]any{
		"command": "echo partial; exit 3",
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(out, "partial") {
		t.Errorf("partial output lost on failure: %q", out)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	start := time.Now()
	_, err := executeRunCommand(context.Background(), testSession(t), map[string]any{
		"command":         "sleep 30",
		"timeout_seconds": 1,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestRunCommandWorkingDirSandbox(t *testing.T) {
	_, err := executeRunCommand(context.Background(), testSession(t), map[string]any{
		"command":     "pwd",
		"working_dir": "../..",
	})
	if err == nil {
		t.Fatal("expected sandbox violation for working_dir outside root")
	}
}

func TestRunCommandInWorkDir(t *testing.T) {
	sess := testSession(t)
	out, err := executeRunCommand(context.Background(), sess, map[string]any{
		"command": "pwd",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(out))
	want, _ := filepath.EvalSymlinks(sess.WorkDir)
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

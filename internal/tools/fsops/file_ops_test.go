package fsops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qoze/internal/types"
)

func testSession(t *testing.T) *types.SessionContext {
	t.Helper()
	dir := t.TempDir()
	return &types.SessionContext{SessionID: "test", WorkDir: dir, SandboxRoot: dir}
}

func TestWriteThenRead(t *testing.T) {
	sess := testSession(t)
	ctx := context.Background()

	if _, err := executeWriteFile(ctx, sess, map[string]any{
		"path":    "sub/dir/note.txt",
		"content": "line one\nline two\nline three",
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	out, err := executeReadFile(ctx, sess, map[string]any{"path": "sub/dir/note.txt"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if out != "line one\nline two\nline three" {
		t.Errorf("content = %q", out)
	}
}

func TestReadLineRange(t *testing.T) {
	sess := testSession(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(sess.WorkDir, "f.txt"), []byte("a\nb\nc\nd"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeReadFile(ctx, sess, map[string]any{
		"path":       "f.txt",
		"start_line": float64(2),
		"end_line":   float64(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "b\nc" {
		t.Errorf("range = %q, want b\\nc", out)
	}
}

func TestEditFileUniqueness(t *testing.T) {
	sess := testSession(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(sess.WorkDir, "f.txt"), []byte("x y x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Ambiguous match without replace_all is rejected.
	if _, err := executeEditFile(ctx, sess, map[string]any{
		"path": "f.txt", "old_string": "x", "new_string": "z",
	}); err == nil {
		t.Fatal("ambiguous edit should fail")
	}

	if _, err := executeEditFile(ctx, sess, map[string]any{
		"path": "f.txt", "old_string": "x", "new_string": "z", "replace_all": true,
	}); err != nil {
		t.Fatalf("replace_all failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(sess.WorkDir, "f.txt"))
	if string(data) != "z y z" {
		t.Errorf("content = %q", data)
	}
}

func TestEditFileNotFound(t *testing.T) {
	sess := testSession(t)
	if err := os.WriteFile(filepath.Join(sess.WorkDir, "f.txt"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := executeEditFile(context.Background(), sess, map[string]any{
		"path": "f.txt", "old_string": "missing", "new_string": "x",
	}); err == nil {
		t.Fatal("expected error when old_string absent")
	}
}

func TestListFiles(t *testing.T) {
	sess := testSession(t)
	os.Mkdir(filepath.Join(sess.WorkDir, "adir"), 0o755)
	os.WriteFile(filepath.Join(sess.WorkDir, "b.txt"), nil, 0o644)

	out, err := executeListFiles(context.Background(), sess, map[string]any{"path": "."})
	if err != nil {
		t.Fatal(err)
	}
	if out != "adir/\nb.txt" {
		t.Errorf("listing = %q", out)
	}
}

func TestSandboxEnforced(t *testing.T) {
	sess := testSession(t)
	if _, err := executeReadFile(context.Background(), sess, map[string]any{"path": "/etc/passwd"}); err == nil {
		t.Error("read outside sandbox must fail")
	}
	if _, err := executeWriteFile(context.Background(), sess, map[string]any{
		"path": "../escape.txt", "content": "x",
	}); err == nil {
		t.Error("write outside sandbox must fail")
	}
}

func TestGlobAndGrep(t *testing.T) {
	sess := testSession(t)
	ctx := context.Background()
	os.MkdirAll(filepath.Join(sess.WorkDir, "pkg"), 0o755)
	os.WriteFile(filepath.Join(sess.WorkDir, "pkg", "main.go"), []byte("package main\nfunc main() {}\n"), 0o644)
	os.WriteFile(filepath.Join(sess.WorkDir, "readme.md"), []byte("# readme"), 0o644)

	out, err := executeGlob(ctx, sess, map[string]any{"pattern": "**/*.go"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, filepath.Join("pkg", "main.go")) {
		t.Errorf("glob = %q", out)
	}

	out, err = executeGrep(ctx, sess, map[string]any{"pattern": "func main", "file_glob": "*.go"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "main.go:2") {
		t.Errorf("grep = %q", out)
	}
}

package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"qoze/internal/logging"
	"qoze/internal/types"
)

// ResolvePath resolves a tool-supplied path against the session and
// enforces the sandbox boundary. Relative paths resolve against the
// session working directory. A path escaping the sandbox root returns
// ErrPermissionDenied (wrapped) and is audit-logged.
func ResolvePath(sess *types.SessionContext, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(sess.WorkDir, abs)
	}
	abs = filepath.Clean(abs)

	root := sess.SandboxRoot
	if root == "" {
		root = sess.WorkDir
	}
	root = filepath.Clean(root)

	if !within(root, abs) {
		logging.Audit("sandbox violation: session=%s path=%s root=%s", sess.SessionID, path, root)
		return "", fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	return abs, nil
}

// within reports whether target is root or inside it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

package fsops

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"qoze/internal/tools"
	"qoze/internal/types"
)

// skipDirs are never descended into during search.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".qoze":        true,
	"__pycache__":  true,
}

// maxMatches caps search output.
const maxMatches = 200

// GlobTool returns a tool for matching file paths by pattern.
func GlobTool() *tools.Tool {
	return &tools.Tool{
		Name:        "glob",
		Description: "Find files matching a glob pattern (e.g. **/*.go) under a directory",
		Concurrency: tools.ConcurrencyParallel,
		Execute:     executeGlob,
		Schema: tools.Schema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Glob pattern to match file names against",
				},
				"path": {
					Type:        "string",
					Description: "Directory to search (default: session working directory)",
				},
			},
		},
	}
}

func executeGlob(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}

	root := sess.WorkDir
	if p, ok := args["path"].(string); ok && p != "" {
		resolved, err := tools.ResolvePath(sess, p)
		if err != nil {
			return "", err
		}
		root = resolved
	}

	// "**/" prefixes match at any depth; match against the relative
	// path tail as well as the basename.
	tail := strings.TrimPrefix(pattern, "**/")

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			matches = append(matches, rel)
		} else if ok, _ := filepath.Match(tail, filepath.Base(path)); ok {
			matches = append(matches, rel)
		}
		if len(matches) >= maxMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", err
	}

	if len(matches) == 0 {
		return "no files matched", nil
	}
	return strings.Join(matches, "\n"), nil
}

// GrepTool returns a tool for regexp content search.
func GrepTool() *tools.Tool {
	return &tools.Tool{
		Name:        "grep",
		Description: "Search file contents for a regular expression, returning path:line matches",
		Concurrency: tools.ConcurrencyParallel,
		Execute:     executeGrep,
		Schema: tools.Schema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Regular expression to search for",
				},
				"path": {
					Type:        "string",
					Description: "Directory or file to search (default: session working directory)",
				},
				"file_glob": {
					Type:        "string",
					Description: "Only search files whose name matches this glob",
				},
			},
		},
	}
}

func executeGrep(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	root := sess.WorkDir
	if p, ok := args["path"].(string); ok && p != "" {
		resolved, err := tools.ResolvePath(sess, p)
		if err != nil {
			return "", err
		}
		root = resolved
	}
	fileGlob, _ := args["file_glob"].(string)

	var out strings.Builder
	count := 0

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if fileGlob != "" {
			if ok, _ := filepath.Match(fileGlob, d.Name()); !ok {
				return nil
			}
		}
		matched, scanErr := grepFile(re, root, path, &out, &count)
		if scanErr != nil || !matched {
			return nil
		}
		if count >= maxMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", err
	}

	if count == 0 {
		return "no matches", nil
	}
	result := out.String()
	if count >= maxMatches {
		result += fmt.Sprintf("...[stopped after %d matches]", maxMatches)
	}
	return result, nil
}

func grepFile(re *regexp.Regexp, root, path string, out *strings.Builder, count *int) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	matched := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		// Binary files are skipped on the first NUL byte.
		if strings.ContainsRune(line, 0) {
			return matched, nil
		}
		if re.MatchString(line) {
			fmt.Fprintf(out, "%s:%d: %s\n", rel, lineNo, strings.TrimSpace(line))
			matched = true
			*count++
			if *count >= maxMatches {
				return matched, nil
			}
		}
	}
	return matched, scanner.Err()
}

package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const defaultMaxReadBytes = 256 * 1024

// validateWorkspacePath ensures the given path is within the workspace directory
// and prevents directory traversal attacks
func validateWorkspacePath(workspacePath, targetPath string) (string, error) {
	absWorkspace, err := filepath.Abs(filepath.Clean(workspacePath))
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	absTarget := filepath.Clean(targetPath)
	if !filepath.IsAbs(absTarget) {
		absTarget, err = filepath.Abs(filepath.Join(absWorkspace, targetPath))
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
	}

	if absTarget != absWorkspace &&
		!strings.HasPrefix(absTarget+string(filepath.Separator), absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside workspace: %s", targetPath)
	}
	return absTarget, nil
}

func stringArg(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

func boolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}

func intArg(args map[string]any, name string, def int64) int64 {
	switch v := args[name].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return def
}

// WorkspaceTools returns read-only filesystem tools rooted at workspacePath.
func WorkspaceTools(workspacePath string) []Tool {
	return []Tool{
		New("read_file", "Read a text file from the workspace.").
			WithString("path", "Path relative to the workspace root", true).
			WithNumber("max_bytes", "Maximum number of bytes to return (default 262144)", false).
			Using(func(ctx context.Context, args map[string]any) (any, error) {
				return readFile(workspacePath, args)
			}),
		New("list_directory", "List the entries of a workspace directory.").
			WithString("path", "Directory relative to the workspace root (default: root)", false).
			WithBoolean("include_hidden", "Include entries starting with a dot", false).
			Using(func(ctx context.Context, args map[string]any) (any, error) {
				return listDirectory(workspacePath, args)
			}),
		New("file_info", "Return size, mode and modification time of a workspace path.").
			WithString("path", "Path relative to the workspace root", true).
			Using(func(ctx context.Context, args map[string]any) (any, error) {
				return fileInfo(workspacePath, args)
			}),
	}
}

func readFile(workspacePath string, args map[string]any) (any, error) {
	path := stringArg(args, "path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	validPath, err := validateWorkspacePath(workspacePath, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	file, err := os.Open(validPath) //#nosec 304 -- validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only file

	maxBytes := intArg(args, "max_bytes", defaultMaxReadBytes)
	content, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return map[string]any{
		"path":      path,
		"content":   string(content),
		"size":      info.Size(),
		"truncated": info.Size() > int64(len(content)),
	}, nil
}

func listDirectory(workspacePath string, args map[string]any) (any, error) {
	path := stringArg(args, "path", ".")
	validPath, err := validateWorkspacePath(workspacePath, path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(validPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	includeHidden := boolArg(args, "include_hidden")
	entries := make([]any, 0, len(dirEntries))
	for _, entry := range dirEntries {
		name := entry.Name()
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		entries = append(entries, map[string]any{
			"name":   name,
			"path":   filepath.Join(path, name),
			"is_dir": entry.IsDir(),
			"size":   info.Size(),
		})
	}

	return map[string]any{
		"path":    path,
		"entries": entries,
		"count":   len(entries),
	}, nil
}

func fileInfo(workspacePath string, args map[string]any) (any, error) {
	path := stringArg(args, "path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	validPath, err := validateWorkspacePath(workspacePath, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validPath)
	if os.IsNotExist(err) {
		return map[string]any{"path": path, "exists": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return map[string]any{
		"path":     path,
		"exists":   true,
		"is_dir":   info.IsDir(),
		"size":     info.Size(),
		"mode":     info.Mode().String(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}

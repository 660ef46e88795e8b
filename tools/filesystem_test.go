package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/echolabsdev/prism-sub001/llm"
)

func TestValidateWorkspacePath(t *testing.T) {
	workspacePath, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to get absolute path: %v", err)
	}

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{name: "valid relative path", target: "test.txt"},
		{name: "valid absolute path within workspace", target: filepath.Join(workspacePath, "test.txt")},
		{name: "workspace root", target: "."},
		{name: "valid nested path", target: "dir/subdir/file.txt"},
		{name: "path traversal attempt", target: "../../../etc/passwd", wantErr: true},
		{name: "path outside workspace", target: "/etc/passwd", wantErr: true},
		{name: "sibling with shared prefix", target: workspacePath + "-other/file", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateWorkspacePath(workspacePath, tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateWorkspacePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == "" {
				t.Errorf("validateWorkspacePath() returned empty path for valid input")
			}
		})
	}
}

func TestWorkspaceTools(t *testing.T) {
	workspacePath := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspacePath, "notes.txt"), []byte("hello workspace"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspacePath, ".hidden"), []byte("x"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	workspaceTools := WorkspaceTools(workspacePath)
	calls := []llm.ToolCall{
		{ID: "1", Name: "read_file", RawArguments: `{"path":"notes.txt","max_bytes":5}`},
		{ID: "2", Name: "list_directory", RawArguments: `{}`},
		{ID: "3", Name: "file_info", RawArguments: `{"path":"missing.txt"}`},
	}

	results, err := Invoke(context.Background(), workspaceTools, calls)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	read := results[0].Result.(map[string]any)
	if read["content"] != "hello" || read["truncated"] != true {
		t.Errorf("Unexpected read_file result: %v", read)
	}

	list := results[1].Result.(map[string]any)
	if list["count"] != 1 {
		t.Errorf("Expected 1 visible entry, got %v", list["count"])
	}

	info := results[2].Result.(map[string]any)
	if info["exists"] != false {
		t.Errorf("Expected missing file to report exists=false, got %v", info)
	}
}

func TestWorkspaceTools_RejectsTraversal(t *testing.T) {
	_, err := Invoke(context.Background(), WorkspaceTools(t.TempDir()), []llm.ToolCall{
		{ID: "1", Name: "read_file", RawArguments: `{"path":"../../etc/passwd"}`},
	})
	if !IsExecutionFailed(err) {
		t.Fatalf("Expected tool execution error, got %v", err)
	}
}

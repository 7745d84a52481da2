package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kennyjwilli/claude-clojure-tools/tools"
)

func testTool(name string) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: "test tool: " + name,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{"type": "string"},
			},
		},
	}
}

func echoHandler(_ context.Context, args json.RawMessage) (tools.Result, error) {
	return tools.Result{Content: string(args)}, nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		tool    tools.Tool
		wantErr error
	}{
		{
			name: "valid tool",
			tool: testTool("register_valid"),
		},
		{
			name:    "empty name",
			tool:    tools.Tool{Name: ""},
			wantErr: tools.ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tools.Register(tt.tool, echoHandler)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Register() unexpected error: %v", err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	tool := testTool("register_duplicate")

	if err := tools.Register(tool, echoHandler); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}

	err := tools.Register(tool, echoHandler)
	if !errors.Is(err, tools.ErrAlreadyExists) {
		t.Errorf("second Register() error = %v, want %v", err, tools.ErrAlreadyExists)
	}
}

func TestReplace(t *testing.T) {
	tool := testTool("replace_existing")

	if err := tools.Register(tool, echoHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	replacement := func(_ context.Context, _ json.RawMessage) (tools.Result, error) {
		return tools.Result{Content: "replaced"}, nil
	}
	if err := tools.Replace(tool, replacement); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	result, err := tools.Execute(context.Background(), tool.Name, nil)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if result.Content != "replaced" {
		t.Errorf("Execute() content = %q, want %q", result.Content, "replaced")
	}
}

func TestReplace_NotFound(t *testing.T) {
	err := tools.Replace(testTool("replace_missing"), echoHandler)
	if !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("Replace() error = %v, want %v", err, tools.ErrNotFound)
	}
}

func TestExecute(t *testing.T) {
	tool := testTool("execute_echo")
	if err := tools.Register(tool, echoHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	args := json.RawMessage(`{"input":"hi"}`)
	result, err := tools.Execute(context.Background(), tool.Name, args)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if result.Content != string(args) {
		t.Errorf("Execute() content = %q, want %q", result.Content, args)
	}
}

func TestExecute_NotFound(t *testing.T) {
	_, err := tools.Execute(context.Background(), "execute_missing", nil)
	if !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("Execute() error = %v, want %v", err, tools.ErrNotFound)
	}
}

func TestExecute_HandlerError(t *testing.T) {
	tool := testTool("execute_failing")
	boom := errors.New("boom")
	failing := func(_ context.Context, _ json.RawMessage) (tools.Result, error) {
		return tools.Result{}, boom
	}
	if err := tools.Register(tool, failing); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	_, err := tools.Execute(context.Background(), tool.Name, nil)
	if !errors.Is(err, boom) {
		t.Errorf("Execute() error = %v, want wrapped handler error", err)
	}
}

func TestList(t *testing.T) {
	tool := testTool("list_me")
	if err := tools.Register(tool, echoHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	found := false
	for _, listed := range tools.List() {
		if listed.Name == tool.Name {
			found = true
			if listed.Description != tool.Description {
				t.Errorf("listed description = %q, want %q", listed.Description, tool.Description)
			}
		}
	}
	if !found {
		t.Errorf("List() does not contain %q", tool.Name)
	}
}

func TestGet(t *testing.T) {
	tool := testTool("get_me")
	if err := tools.Register(tool, echoHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if _, ok := tools.Get(tool.Name); !ok {
		t.Errorf("Get(%q) = false, want registered handler", tool.Name)
	}
	if _, ok := tools.Get("get_missing"); ok {
		t.Error("Get() found a handler for an unregistered name")
	}
}

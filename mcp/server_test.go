package mcp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kennyjwilli/claude-clojure-tools/mcp"
	"github.com/kennyjwilli/claude-clojure-tools/tools"
)

// fakeExecutor serves a fixed tool list and a scripted Execute.
type fakeExecutor struct {
	list    []tools.Tool
	execute func(ctx context.Context, name string, args json.RawMessage) (tools.Result, error)
	calls   []string
}

func (f *fakeExecutor) List() []tools.Tool { return f.list }

func (f *fakeExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	f.calls = append(f.calls, name)
	if f.execute == nil {
		return tools.Result{}, errors.New("no executor scripted")
	}
	return f.execute(ctx, name, args)
}

// serve runs the request lines through a Server and returns one decoded
// response per output line.
func serve(t *testing.T, exec mcp.ToolExecutor, lines ...string) []map[string]any {
	t.Helper()

	srv := mcp.NewServer("test-server", "0.0.1", mcp.WithToolExecutor(exec))
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out strings.Builder

	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() failed: %v", err)
	}

	var responses []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var resp map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("response line is not valid JSON: %v\nline: %s", err, scanner.Text())
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestServer_Initialize(t *testing.T) {
	responses := serve(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	resp := responses[0]
	if resp["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v, want 2.0", resp["jsonrpc"])
	}
	if resp["id"] != float64(1) {
		t.Errorf("id = %v, want 1", resp["id"])
	}

	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("result missing: %v", resp)
	}
	if result["protocolVersion"] != mcp.ProtocolVersion {
		t.Errorf("protocolVersion = %v, want %q", result["protocolVersion"], mcp.ProtocolVersion)
	}
	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != "test-server" || info["version"] != "0.0.1" {
		t.Errorf("serverInfo = %v, want test-server/0.0.1", info)
	}
	if _, ok := result["capabilities"].(map[string]any)["tools"]; !ok {
		t.Errorf("capabilities advertise no tools: %v", result["capabilities"])
	}
}

func TestServer_Ping(t *testing.T) {
	responses := serve(t, &fakeExecutor{}, `{"jsonrpc":"2.0","id":"p1","method":"ping"}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	if responses[0]["id"] != "p1" {
		t.Errorf("id = %v, want p1", responses[0]["id"])
	}
	if _, ok := responses[0]["result"]; !ok {
		t.Errorf("ping response has no result: %v", responses[0])
	}
}

func TestServer_ToolsList(t *testing.T) {
	exec := &fakeExecutor{
		list: []tools.Tool{{
			Name:        "repl_eval",
			Description: "Evaluate code",
			InputSchema: map[string]any{"type": "object"},
		}},
	}

	responses := serve(t, exec, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	result, _ := responses[0]["result"].(map[string]any)
	listed, _ := result["tools"].([]any)
	if len(listed) != 1 {
		t.Fatalf("tools list = %v, want one tool", result["tools"])
	}
	if tool, _ := listed[0].(map[string]any); tool["name"] != "repl_eval" {
		t.Errorf("tool name = %v, want repl_eval", tool["name"])
	}
}

func TestServer_ToolsCall(t *testing.T) {
	exec := &fakeExecutor{
		execute: func(_ context.Context, name string, args json.RawMessage) (tools.Result, error) {
			return tools.Result{
				Content:    `{"values":["6"]}`,
				Structured: map[string]any{"values": []string{"6"}},
			}, nil
		},
	}

	responses := serve(t, exec,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"repl_eval","arguments":{"code":"(+ 1 2 3)"}}}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	if got := exec.calls; len(got) != 1 || got[0] != "repl_eval" {
		t.Fatalf("executor calls = %v, want [repl_eval]", got)
	}

	result, _ := responses[0]["result"].(map[string]any)
	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %v, want one text block", result["content"])
	}
	block, _ := content[0].(map[string]any)
	if block["type"] != "text" || block["text"] != `{"values":["6"]}` {
		t.Errorf("content block = %v", block)
	}
	if _, ok := result["structuredContent"]; !ok {
		t.Errorf("structuredContent missing: %v", result)
	}
	if _, ok := result["isError"]; ok {
		t.Errorf("isError present on success: %v", result)
	}
}

func TestServer_ToolsCallErrorResult(t *testing.T) {
	exec := &fakeExecutor{
		execute: func(_ context.Context, _ string, _ json.RawMessage) (tools.Result, error) {
			return tools.Result{Content: "REPL server unavailable", IsError: true}, nil
		},
	}

	responses := serve(t, exec,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"repl_eval","arguments":{}}}`)

	result, _ := responses[0]["result"].(map[string]any)
	if result["isError"] != true {
		t.Errorf("isError = %v, want true", result["isError"])
	}
	if _, ok := responses[0]["error"]; ok {
		t.Error("tool failure surfaced as protocol error, want in-band result")
	}
}

func TestServer_ToolsCallBadParams(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{
			name: "missing tool name",
			line: `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"arguments":{}}}`,
		},
		{
			name: "params not an object",
			line: `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":"repl_eval"}`,
		},
		{
			name: "unknown tool",
			line: `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := serve(t, &fakeExecutor{}, tt.line)
			if len(responses) != 1 {
				t.Fatalf("got %d responses, want 1", len(responses))
			}
			errObj, _ := responses[0]["error"].(map[string]any)
			if errObj == nil {
				t.Fatalf("no error object: %v", responses[0])
			}
			if errObj["code"] != float64(mcp.CodeInvalidParams) {
				t.Errorf("code = %v, want %d", errObj["code"], mcp.CodeInvalidParams)
			}
		})
	}
}

func TestServer_UnknownMethod(t *testing.T) {
	responses := serve(t, &fakeExecutor{}, `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)

	errObj, _ := responses[0]["error"].(map[string]any)
	if errObj == nil || errObj["code"] != float64(mcp.CodeMethodNotFound) {
		t.Errorf("response = %v, want method-not-found error", responses[0])
	}
}

func TestServer_NotificationGetsNoResponse(t *testing.T) {
	responses := serve(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":7,"method":"ping"}`)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1: notifications are unanswered", len(responses))
	}
	if responses[0]["id"] != "7" && responses[0]["id"] != float64(7) {
		t.Errorf("id = %v, want 7", responses[0]["id"])
	}
}

func TestServer_MalformedLineDoesNotKillLoop(t *testing.T) {
	responses := serve(t, &fakeExecutor{},
		`{this is not json`,
		`{"jsonrpc":"2.0","id":8,"method":"ping"}`)

	if len(responses) != 2 {
		t.Fatalf("got %d responses, want parse error + ping result", len(responses))
	}

	errObj, _ := responses[0]["error"].(map[string]any)
	if errObj == nil || errObj["code"] != float64(mcp.CodeParseError) {
		t.Errorf("first response = %v, want parse error", responses[0])
	}
	if responses[0]["id"] != nil {
		t.Errorf("parse error id = %v, want null", responses[0]["id"])
	}

	if _, ok := responses[1]["result"]; !ok {
		t.Errorf("second response = %v, want ping result", responses[1])
	}
}

func TestServer_PanickingHandlerAnswersItsLine(t *testing.T) {
	exec := &fakeExecutor{
		execute: func(_ context.Context, _ string, _ json.RawMessage) (tools.Result, error) {
			panic("handler blew up")
		},
	}

	responses := serve(t, exec,
		`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"repl_eval"}}`,
		`{"jsonrpc":"2.0","id":10,"method":"ping"}`)

	if len(responses) != 2 {
		t.Fatalf("got %d responses, want internal error + ping result", len(responses))
	}
	errObj, _ := responses[0]["error"].(map[string]any)
	if errObj == nil || errObj["code"] != float64(mcp.CodeInternalError) {
		t.Errorf("first response = %v, want internal error", responses[0])
	}
	if _, ok := responses[1]["result"]; !ok {
		t.Errorf("loop did not survive panic: %v", responses[1])
	}
}

func TestServer_EmptyLinesSkipped(t *testing.T) {
	responses := serve(t, &fakeExecutor{},
		``,
		`{"jsonrpc":"2.0","id":11,"method":"ping"}`,
		``)

	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
}

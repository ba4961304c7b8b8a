package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mockflow/internal/mcp/tools"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

func testSet(t *testing.T) *tools.Set {
	t.Helper()
	set, err := tools.NewSet(nil,
		tools.Tool{
			Definition: llm.ToolDefinition{
				Name:        "echo",
				Description: "Echo the arguments.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"text": map[string]any{"type": "string"}},
				},
			},
			Handler: func(_ context.Context, args string) (string, error) { return args, nil },
		},
		tools.Tool{
			Definition: llm.ToolDefinition{Name: "fail"},
			Handler: func(context.Context, string) (string, error) {
				return "", errors.New("not now")
			},
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return set
}

func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcpsdk.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func text(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, New("mockflow-test", testSet(t)))

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names = append(names, tool.Name)
	}
	if len(names) != 2 {
		t.Fatalf("tools = %v, want 2", names)
	}
}

func TestServer_CallTool(t *testing.T) {
	t.Parallel()
	cs := connect(t, New("mockflow-test", testSet(t)))
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("IsError = true, content %q", text(res))
	}
	if got := text(res); !strings.Contains(got, `"hello"`) {
		t.Errorf("content = %q, want echoed arguments", got)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "fail"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || text(res) != "not now" {
		t.Errorf("fail result = %+v, want tool error", res)
	}
}

func TestHandler_StreamableHTTP(t *testing.T) {
	t.Parallel()
	s := New("mockflow-test", testSet(t))
	h := Handler(func(r *http.Request) *Server {
		if r.URL.Query().Get("session") == "known" {
			return s
		}
		return nil
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: ts.URL + "?session=known"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text(res), "hi") {
		t.Errorf("content = %q", text(res))
	}

	if _, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: ts.URL + "?session=nope"}, nil); err == nil {
		t.Error("expected connect to an unknown session to fail")
	}
}

package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Text(t *testing.T) {
	t.Parallel()
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		t.Run(role, func(t *testing.T) {
			got := convertMessage(llm.Message{Role: role, Content: "Tell me about yourself."})
			if got.Role != role {
				t.Errorf("expected role %s, got %q", role, got.Role)
			}
			if got.ContentString() != "Tell me about yourself." {
				t.Errorf("unexpected content %q", got.ContentString())
			}
			if len(got.ToolCalls) != 0 {
				t.Errorf("expected no tool calls, got %d", len(got.ToolCalls))
			}
		})
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()
	got := convertMessage(llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "transition_stage", Arguments: `{"reason":"objective met"}`},
		},
	})
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "transition_stage" {
		t.Errorf("tool call = %s/%s", tc.ID, tc.Function.Name)
	}
	if tc.Function.Arguments != `{"reason":"objective met"}` {
		t.Errorf("unexpected arguments: %q", tc.Function.Arguments)
	}
	if tc.Type != "function" {
		t.Errorf("expected type function, got %q", tc.Type)
	}
}

func TestConvertMessage_Tool(t *testing.T) {
	t.Parallel()
	got := convertMessage(llm.Message{Role: llm.RoleTool, Content: `{"outcome":"DENY"}`, ToolCallID: "call_1"})
	if got.Role != llm.RoleTool || got.ToolCallID != "call_1" {
		t.Errorf("got role=%q id=%q", got.Role, got.ToolCallID)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "claude-3-5-sonnet-latest"}
	params := p.buildParams(llm.Request{
		SystemPrompt: "You are Alex.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Hello"}},
		Tools: []llm.ToolDefinition{{
			Name:        "ask_question",
			Description: "Ask the candidate a question.",
			Parameters:  map[string]any{"type": "object"},
		}},
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if params.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("messages = %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 300 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "ask_question" {
		t.Errorf("tools = %+v", params.Tools)
	}
}

func TestBuildParams_DefaultsOmitted(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}}})
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens should be left unset")
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected no system message, got %d messages", len(params.Messages))
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty backend")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend string
		model   string
		opts    []anyllmlib.Option
	}{
		{"openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", "claude-3-5-sonnet-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Model() != tt.model {
				t.Errorf("Model() = %q, want %q", p.Model(), tt.model)
			}
			if p.Backend() == "" || p.Backend() != p.name {
				t.Errorf("Backend() = %q", p.Backend())
			}
		})
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

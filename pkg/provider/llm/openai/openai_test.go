package openai

import (
	"testing"

	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role  string
		check func(t *testing.T, m llm.Message)
	}{
		{llm.RoleSystem, func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfSystem == nil {
				t.Fatalf("OfSystem not set (err=%v)", err)
			}
		}},
		{llm.RoleUser, func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfUser == nil {
				t.Fatalf("OfUser not set (err=%v)", err)
			}
		}},
		{llm.RoleAssistant, func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil || p.OfAssistant == nil {
				t.Fatalf("OfAssistant not set (err=%v)", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			tt.check(t, llm.Message{Role: tt.role, Content: "hello"})
		})
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()
	msg := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "ask_question", Arguments: `{"question":"Why Go?"}`},
		},
	}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil || len(param.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected one assistant tool call, got %+v", param.OfAssistant)
	}
	tc := param.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "ask_question" {
		t.Errorf("tool call = %s/%s", tc.ID, tc.Function.Name)
	}
	if tc.Function.Arguments != `{"question":"Why Go?"}` {
		t.Errorf("unexpected arguments: %s", tc.Function.Arguments)
	}
}

func TestConvertMessage_Tool(t *testing.T) {
	t.Parallel()
	param, err := convertMessage(llm.Message{Role: llm.RoleTool, Content: `{"outcome":"APPROVED"}`, ToolCallID: "call_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfTool == nil || param.OfTool.ToolCallID != "call_1" {
		t.Fatalf("OfTool = %+v", param.OfTool)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(llm.Message{Role: "narrator"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.Request{
		SystemPrompt: "You are Alex, an interviewer.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Tools:        []llm.ToolDefinition{{Name: "ask_question", Parameters: map[string]any{"type": "object"}}},
		Temperature:  0.4,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Errorf("expected system + user message, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "ask_question" {
		t.Errorf("tools = %+v", params.Tools)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
}

func TestBuildParams_Empty(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	if _, err := p.buildParams(llm.Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://llm.example.com/v1"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "gpt-4o" {
		t.Errorf("Model() = %q", p.Model())
	}
}

package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/mockflow/pkg/provider/llm"
	llmmock "github.com/MrWong99/mockflow/pkg/provider/llm/mock"
)

func TestLLMSummariser_Summarise(t *testing.T) {
	t.Parallel()

	t.Run("empty messages returns empty string", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{}
		result, err := NewLLMSummariser(p).Summarise(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
		if len(p.Calls()) != 0 {
			t.Errorf("expected no LLM calls for empty input, got %d", len(p.Calls()))
		}
	})

	t.Run("summarises messages via LLM", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteResponse: &llm.Response{Content: "Candidate led a payments migration."}}

		result, err := NewLLMSummariser(p).Summarise(context.Background(), []llm.Message{
			{Role: llm.RoleAssistant, Content: "Tell me about a project you led."},
			{Role: llm.RoleUser, Content: "I led our payments migration."},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "Candidate led a payments migration." {
			t.Errorf("unexpected result: %q", result)
		}

		calls := p.Calls()
		if len(calls) != 1 {
			t.Fatalf("expected 1 Complete call, got %d", len(calls))
		}
		req := calls[0].Req
		if req.SystemPrompt != summarisationPrompt {
			t.Errorf("expected summarisation prompt, got %q", req.SystemPrompt)
		}
		content := req.Messages[0].Content
		if !strings.Contains(content, "[interviewer]: Tell me") || !strings.Contains(content, "[candidate]: I led") {
			t.Errorf("transcript = %q", content)
		}
	})

	t.Run("reduces tool traffic to names", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteResponse: &llm.Response{Content: "summary"}}

		_, err := NewLLMSummariser(p).Summarise(context.Background(), []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "1", Name: "ask_question", Arguments: `{"question":"Why?"}`}}},
			{Role: llm.RoleTool, ToolCallID: "1", Content: `{"outcome":"APPROVED"}`},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content := p.Calls()[0].Req.Messages[0].Content
		if !strings.Contains(content, "called ask_question") {
			t.Errorf("expected tool name in transcript, got %q", content)
		}
		if strings.Contains(content, "APPROVED") {
			t.Errorf("tool result leaked into transcript: %q", content)
		}
	})

	t.Run("propagates LLM errors", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteErr: errors.New("model overloaded")}

		_, err := NewLLMSummariser(p).Summarise(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "Hello"}})
		if err == nil || !strings.Contains(err.Error(), "model overloaded") {
			t.Fatalf("err = %v, want wrapped model error", err)
		}
	})
}

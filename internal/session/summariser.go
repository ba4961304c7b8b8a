// Package session keeps the per-interview conversation: the bounded working
// history sent to the turn producer ([History]), the full spoken transcript,
// and LLM-backed summarisation of trimmed history ([Summariser],
// [LLMSummariser]).
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when summarising
// older parts of an interview.
const summarisationPrompt = `Summarise the following part of a job interview between an interviewer and a candidate.
Preserve: the questions already asked, concrete facts the candidate shared (roles, projects,
technologies, outcomes, numbers) and any request the candidate made about the interview flow.
Be concise. Do not evaluate the candidate.`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	// Summarise takes a slice of messages and returns a condensed summary string.
	Summarise(ctx context.Context, messages []llm.Message) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise formats messages as a transcript and asks the model for a
// summary. Tool traffic is reduced to the tool names so that approval
// payloads do not dominate the summary.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, m := range messages {
		switch {
		case m.Role == llm.RoleTool:
			continue
		case len(m.ToolCalls) > 0:
			names := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				names[i] = tc.Name
			}
			fmt.Fprintf(&sb, "[%s called %s]\n", speaker(m.Role), strings.Join(names, ", "))
			if m.Content != "" {
				fmt.Fprintf(&sb, "[%s]: %s\n", speaker(m.Role), m.Content)
			}
		default:
			fmt.Fprintf(&sb, "[%s]: %s\n", speaker(m.Role), m.Content)
		}
	}

	resp, err := s.llm.Complete(ctx, llm.Request{
		SystemPrompt: summarisationPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("summarise: empty response")
	}
	return resp.Content, nil
}

func speaker(role string) string {
	switch role {
	case llm.RoleUser:
		return SpeakerCandidate
	case llm.RoleAssistant:
		return SpeakerInterviewer
	default:
		return role
	}
}

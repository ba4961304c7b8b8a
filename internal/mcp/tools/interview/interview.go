// Package interview exposes an interview [controller.Controller] as tools a
// turn producer can call.
//
// Five tools are exported via [Tools]:
//   - "ask_question": request approval to speak a question.
//   - "assess_response": score the candidate's latest answer (depth 1-5).
//   - "transition_stage": ask to move on to the next stage.
//   - "skip_stage": relay a candidate's request to jump ahead.
//   - "interview_status": read the current stage progress.
//
// Rejections (duplicate question, minimum not met, backward skip) are normal
// results carrying an outcome field. Malformed arguments, out-of-range scores
// and calls after the interview ended are tool errors.
package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/mcp/tools"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// Tools returns the interview tools bound to c.
func Tools(c *controller.Controller) []tools.Tool {
	var stageNames []any
	for _, s := range c.Stages().Stages() {
		stageNames = append(stageNames, s.Name)
	}

	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name: controller.KindAskQuestion,
				Description: "Request approval before asking the candidate a question. " +
					"Speak the returned 'speak' text verbatim when the outcome is APPROVED; " +
					"on DENY ask something different. On CLOSING the interview has reached " +
					"its closing stage: speak the 'speak' text verbatim and ask nothing.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{
							"type":        "string",
							"description": "The exact question you intend to ask.",
						},
					},
					"required": []any{"question"},
				},
			},
			Handler: handle(c, func(args string) (controller.Request, error) {
				var r controller.AskQuestion
				if err := decode(args, &r); err != nil {
					return nil, err
				}
				if strings.TrimSpace(r.Question) == "" {
					return nil, fmt.Errorf("interview: question must not be empty")
				}
				return r, nil
			}),
		},
		{
			Definition: llm.ToolDefinition{
				Name: controller.KindAssessResponse,
				Description: "Score the depth of the candidate's latest answer after each of their turns. " +
					"Follow the returned guidance.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"depth_score": map[string]any{
							"type":        "integer",
							"minimum":     1,
							"maximum":     5,
							"description": "1 = superficial, 5 = detailed with concrete examples and outcomes.",
						},
						"key_points": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Notable facts the candidate mentioned.",
						},
					},
					"required": []any{"depth_score"},
				},
			},
			Handler: handle(c, func(args string) (controller.Request, error) {
				var r controller.AssessResponse
				if err := decode(args, &r); err != nil {
					return nil, err
				}
				return r, nil
			}),
		},
		{
			Definition: llm.ToolDefinition{
				Name: controller.KindRequestTransition,
				Description: "Ask to move to the next interview stage once its objective is met. " +
					"DENY means more questions are required first.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason": map[string]any{
							"type":        "string",
							"description": "Why the current stage is complete.",
						},
					},
				},
			},
			Handler: handle(c, func(args string) (controller.Request, error) {
				var r controller.RequestTransition
				if err := decode(args, &r); err != nil {
					return nil, err
				}
				return r, nil
			}),
		},
		{
			Definition: llm.ToolDefinition{
				Name: controller.KindSkipRequest,
				Description: "Relay the candidate's explicit request to jump ahead to a later stage. " +
					"The jump takes effect at the next checkpoint.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"target_stage": map[string]any{
							"type": "string",
							"enum": stageNames,
						},
					},
					"required": []any{"target_stage"},
				},
			},
			Handler: handle(c, func(args string) (controller.Request, error) {
				var r controller.SkipRequest
				if err := decode(args, &r); err != nil {
					return nil, err
				}
				return r, nil
			}),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        StatusTool,
				Description: "Report the current stage, questions asked, remaining time and urgency.",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			Handler: func(_ context.Context, _ string) (string, error) {
				return encode(c.Progress())
			},
		},
	}
}

// StatusTool is the name of the read-only progress tool.
const StatusTool = "interview_status"

func handle(c *controller.Controller, parse func(string) (controller.Request, error)) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		req, err := parse(args)
		if err != nil {
			return "", err
		}
		res, err := c.Dispatch(ctx, req)
		if err != nil {
			return "", err
		}
		return encode(res)
	}
}

func decode(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("interview: failed to parse arguments: %w", err)
	}
	return nil
}

func encode(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("interview: failed to encode result: %w", err)
	}
	return string(out), nil
}

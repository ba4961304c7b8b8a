// Package tools defines the shared [Tool] type used by the interview tool
// packages and a [Set] that dispatches calls to them. The same tools are
// offered to the in-process LLM turn driver and exported over MCP.
package tools

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// Tool is a callable tool with its LLM-facing schema.
type Tool struct {
	// Definition holds the tool name, its description and the JSON Schema of
	// its parameters.
	Definition llm.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result. Returned errors are reported to the model as tool
	// errors, not as turn failures. Implementations must be safe for
	// concurrent use.
	Handler func(ctx context.Context, args string) (string, error)
}

// Result is the outcome of a [Set.Call].
type Result struct {
	Content  string
	IsError  bool
	Duration time.Duration
}

// Set is an ordered, immutable collection of tools.
type Set struct {
	tools   []Tool
	byName  map[string]int
	metrics *observe.Metrics
}

// NewSet builds a Set. Duplicate names are an error.
func NewSet(metrics *observe.Metrics, ts ...Tool) (*Set, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Set{byName: make(map[string]int, len(ts)), metrics: metrics}
	for _, t := range ts {
		name := t.Definition.Name
		if name == "" {
			return nil, fmt.Errorf("tools: tool must have a non-empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: tool %q must have a non-nil handler", name)
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		s.byName[name] = len(s.tools)
		s.tools = append(s.tools, t)
	}
	return s, nil
}

// Tools returns the tools in registration order.
func (s *Set) Tools() []Tool { return slices.Clone(s.tools) }

// Definitions returns the LLM-facing definitions in registration order.
func (s *Set) Definitions() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(s.tools))
	for i, t := range s.tools {
		out[i] = t.Definition
	}
	return out
}

// Call executes the named tool. An unknown name is an error; a failing
// handler yields a Result with IsError set.
func (s *Set) Call(ctx context.Context, name, args string) (Result, error) {
	i, ok := s.byName[name]
	if !ok {
		s.metrics.RecordToolCall(ctx, name, "unknown")
		return Result{}, fmt.Errorf("tools: tool %q not found", name)
	}
	if args == "" {
		args = "{}"
	}

	ctx, span := observe.StartSpan(ctx, "tool."+name)
	defer span.End()

	start := time.Now()
	out, err := s.tools[i].Handler(ctx, args)
	elapsed := time.Since(start)
	s.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(observe.Attr("tool", name)))

	if err != nil {
		s.metrics.RecordToolCall(ctx, name, "error")
		observe.Logger(ctx).Debug("tool call failed", "tool", name, "err", err)
		return Result{Content: err.Error(), IsError: true, Duration: elapsed}, nil
	}
	s.metrics.RecordToolCall(ctx, name, "ok")
	return Result{Content: out, Duration: elapsed}, nil
}

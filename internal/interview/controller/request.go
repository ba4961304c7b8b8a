package controller

import (
	"context"
	"fmt"
)

// Request is one of the tagged requests a turn producer can issue:
// [AskQuestion], [AssessResponse], [RequestTransition] or [SkipRequest].
type Request interface {
	// Kind returns the wire name of the request.
	Kind() string
	isRequest()
}

// AskQuestion asks approval to speak a question.
type AskQuestion struct {
	Question string `json:"question"`
}

// AssessResponse scores the candidate's latest answer.
type AssessResponse struct {
	Depth     int      `json:"depth_score"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// RequestTransition asks to move to the next stage.
type RequestTransition struct {
	Reason string `json:"reason,omitempty"`
}

// SkipRequest relays a candidate's request to jump ahead.
type SkipRequest struct {
	Target string `json:"target_stage"`
}

// Request kinds.
const (
	KindAskQuestion       = "ask_question"
	KindAssessResponse    = "assess_response"
	KindRequestTransition = "transition_stage"
	KindSkipRequest       = "skip_stage"
)

func (AskQuestion) Kind() string       { return KindAskQuestion }
func (AssessResponse) Kind() string    { return KindAssessResponse }
func (RequestTransition) Kind() string { return KindRequestTransition }
func (SkipRequest) Kind() string       { return KindSkipRequest }

func (AskQuestion) isRequest()       {}
func (AssessResponse) isRequest()    {}
func (RequestTransition) isRequest() {}
func (SkipRequest) isRequest()       {}

// Dispatch routes req to the matching controller operation. The returned
// value is one of [AskResult], [AssessResult], [TransitionResult] or
// [SkipResult].
func (c *Controller) Dispatch(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case AskQuestion:
		return c.AskQuestion(ctx, r.Question)
	case AssessResponse:
		return c.AssessResponse(ctx, r.Depth, r.KeyPoints)
	case RequestTransition:
		return c.RequestTransition(ctx, r.Reason)
	case SkipRequest:
		return c.ApplySkipRequest(ctx, r.Target)
	default:
		return nil, fmt.Errorf("controller: unsupported request %T", req)
	}
}

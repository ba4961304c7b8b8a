// Package feedback generates post-interview coaching feedback for the
// candidate from an archived interview.
//
// The [Generator] sends the candidate profile, the job summary, the spoken
// transcript and the structured assessments collected during the interview
// to an LLM and returns its report. The app stores the report in
// [archive.Record.Feedback] before saving the record.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/mockflow/internal/archive"
	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/internal/session"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// jobSummaryLimit caps the job description excerpt sent to the model.
const jobSummaryLimit = 1000

// ErrEmptyTranscript is returned by [Generator.Generate] when the interview
// has no spoken content to review.
var ErrEmptyTranscript = errors.New("feedback: transcript is empty")

const systemPrompt = `You are an experienced hiring manager and interview coach.
Review the mock interview between a candidate and an AI interviewer and write specific,
constructive and actionable feedback that helps the candidate prepare for real interviews.

You receive CANDIDATE_PROFILE, JOB_SUMMARY, INTERVIEW_CHAT and INTERVIEW_SCORES.
Base every statement on the interview. If information is missing, say so instead of guessing.
Comment only on skills, behaviour and interview performance. Never comment on protected
attributes. Never give legal, immigration, medical or financial advice.

Return the report in this structure:
1. Overall summary: 3-5 sentences on how the candidate performed for this role.
2. Key strengths: 2-4 bullets, each with an example from the interview.
3. Areas to improve: 3-5 bullets, each with an example and how to improve.
4. Answer structure: 3-5 sentences on context, actions and impact in the answers.
5. Practice plan: 3-6 tailored practice questions and 2-3 exercises.

Be supportive and honest. Do not give a pass or fail decision.`

// Option configures a [Generator].
type Option func(*Generator)

// WithTemperature sets the sampling temperature. Defaults to 0.4.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the length of the report. Zero leaves the provider
// default.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithMetrics records generation latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// Generator produces feedback reports. It is safe for concurrent use.
type Generator struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

// NewGenerator returns a Generator backed by provider.
func NewGenerator(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{llm: provider, temperature: 0.4}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate writes a feedback report for rec. profile supplies the job
// description, which the archive does not keep.
func (g *Generator) Generate(ctx context.Context, profile interview.Profile, rec archive.Record) (string, error) {
	if len(rec.Transcript) == 0 {
		return "", ErrEmptyTranscript
	}

	ctx = observe.WithSession(ctx, rec.ID)
	ctx, span := observe.StartSpan(ctx, "feedback.generate")
	defer span.End()

	start := time.Now()
	resp, err := g.llm.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: BuildInput(profile, rec)}},
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if g.metrics != nil {
		g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("feedback: generate %q: %w", rec.ID, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("feedback: generate %q: empty response", rec.ID)
	}
	return strings.TrimSpace(resp.Content), nil
}

// BuildInput renders the tagged user message sent to the model.
func BuildInput(profile interview.Profile, rec archive.Record) string {
	var sb strings.Builder

	sb.WriteString("<CANDIDATE_PROFILE>\n")
	writeField(&sb, "Name", rec.CandidateName)
	writeField(&sb, "Target role", rec.Role)
	writeField(&sb, "Experience level", rec.ExperienceLevel)
	if rec.HasResume {
		sb.WriteString("Resume: provided\n")
	}
	sb.WriteString("</CANDIDATE_PROFILE>\n\n")

	sb.WriteString("<JOB_SUMMARY>\n")
	if jd := strings.TrimSpace(profile.JobDescription); jd != "" {
		sb.WriteString(excerpt(jd, jobSummaryLimit))
		sb.WriteByte('\n')
	} else {
		sb.WriteString("Not provided.\n")
	}
	sb.WriteString("</JOB_SUMMARY>\n\n")

	sb.WriteString("<INTERVIEW_CHAT>\n")
	for _, e := range rec.Transcript {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", e.Stage, speakerLabel(e.Speaker), e.Text)
	}
	sb.WriteString("</INTERVIEW_CHAT>\n\n")

	sb.WriteString("<INTERVIEW_SCORES>\n")
	for _, kp := range rec.KeyPoints {
		fmt.Fprintf(&sb, "- %s: %s\n", kp.Stage, kp.Text)
	}
	if len(rec.SkippedStages) > 0 {
		fmt.Fprintf(&sb, "Skipped stages: %s\n", strings.Join(rec.SkippedStages, ", "))
	}
	fmt.Fprintf(&sb, "Ended: %s in stage %s\n", rec.EndedBy, rec.FinalStage)
	sb.WriteString("</INTERVIEW_SCORES>")

	return sb.String()
}

func writeField(sb *strings.Builder, name, value string) {
	if value == "" {
		value = "unknown"
	}
	fmt.Fprintf(sb, "%s: %s\n", name, value)
}

func speakerLabel(s string) string {
	if s == session.SpeakerCandidate {
		return "Candidate"
	}
	return "Interviewer"
}

func excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

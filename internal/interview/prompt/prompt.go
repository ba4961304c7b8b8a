// Package prompt renders the text the turn producer receives and speaks:
// stage instructions, transition acknowledgements and closing lines.
//
// Rendering is pure string substitution over a candidate [interview.Profile]
// and is safe for concurrent use.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/stage"
)

// Placeholders recognised in templates.
const (
	PlaceholderName            = "[CANDIDATE_NAME]"
	PlaceholderRole            = "[ROLE]"
	PlaceholderExperienceLevel = "[EXPERIENCE_LEVEL]"
	PlaceholderDocumentContext = "[DOCUMENT_CONTEXT]"
	PlaceholderRoleContext     = "[ROLE_CONTEXT]"
)

// Excerpt limits for document context.
const (
	resumeExcerpt         = 1500
	jobDescriptionExcerpt = 1000
)

const defaultRole = "this position"

// Renderer produces stage-specific text for one candidate.
type Renderer struct {
	profile interview.Profile

	// personality is prepended to every instruction block.
	personality string
}

// NewRenderer returns a Renderer for profile.
func NewRenderer(profile interview.Profile) *Renderer {
	r := &Renderer{profile: profile}
	r.personality = r.substitute(personalityTemplate, "")
	return r
}

// Instructions renders the full instruction text for stg: the personality
// preamble followed by the stage template.
func (r *Renderer) Instructions(stg stage.Stage) string {
	body := strings.TrimSpace(r.substitute(stg.InstructionTemplate, stg.Name))
	return strings.TrimSpace(r.personality) + "\n\n" + collapseBlankLines(body)
}

// Acknowledgement returns the spoken line announcing a voluntary transition
// into target. Stages without a dedicated line get a generic one.
func (r *Renderer) Acknowledgement(target stage.Stage) string {
	tpl, ok := transitionAcks[target.Name]
	if !ok {
		tpl = "Thank you, [CANDIDATE_NAME]. Let's move on to " + strings.ToLower(target.Label()) + "."
	}
	return r.substitute(tpl, target.Name)
}

// FallbackAcknowledgement returns the shorter line used when the interview
// was moved forward by the fallback timer.
func (r *Renderer) FallbackAcknowledgement(target stage.Stage) string {
	tpl, ok := fallbackAcks[target.Name]
	if !ok {
		tpl = "Let's continue with " + strings.ToLower(target.Label()) + "."
	}
	return r.substitute(tpl, target.Name)
}

// Closing returns the message spoken on entering the terminal stage. Forced
// entries use the short variant.
func (r *Renderer) Closing(forced bool) string {
	if forced {
		return r.substitute(closingFallback, stage.Closing)
	}
	return r.substitute(transitionAcks[stage.Closing], stage.Closing)
}

// DocumentContext returns the resume or job-description excerpt relevant to
// stageName, or "" when documents are excluded or not relevant.
func (r *Renderer) DocumentContext(stageName string) string {
	p := r.profile
	if !p.IncludeDocuments {
		return ""
	}
	switch stageName {
	case stage.PastExperience:
		if p.Resume == "" {
			return ""
		}
		return "CANDIDATE RESUME (excerpt):\n" + excerpt(p.Resume, resumeExcerpt)
	case stage.CompanyFit:
		if p.JobDescription == "" {
			return ""
		}
		return "JOB DESCRIPTION (excerpt):\n" + excerpt(p.JobDescription, jobDescriptionExcerpt)
	default:
		return ""
	}
}

func (r *Renderer) substitute(tpl, stageName string) string {
	p := r.profile
	role := p.Role
	if role == "" {
		role = defaultRole
	}
	level := p.ExperienceLevel
	if level == "" {
		level = "mid-level"
	}
	repl := strings.NewReplacer(
		PlaceholderName, p.DisplayName(),
		PlaceholderRole, role,
		PlaceholderExperienceLevel, level,
		PlaceholderRoleContext, strings.TrimSpace(RoleContext(p.Role, p.ExperienceLevel)),
		PlaceholderDocumentContext, r.DocumentContext(stageName),
	)
	return repl.Replace(tpl)
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// ProgressLine formats the one-line progress summary attached to question
// approvals.
func ProgressLine(stg stage.Stage, asked int, remainingFraction float64, remainingSeconds int, urgency fmt.Stringer) string {
	return fmt.Sprintf("[PROGRESS] Stage: %s | Questions: %d/%d min | Time: %d%% remaining (%ds) | Urgency: %s",
		stg.Label(), asked, stg.MinQuestions, int(remainingFraction*100+0.5), remainingSeconds, urgency)
}

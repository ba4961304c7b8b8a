package prompt

import (
	"strings"

	"github.com/MrWong99/mockflow/internal/interview/stage"
)

const personalityTemplate = `You are Alex, a friendly and professional interviewer conducting a
mock interview.

The candidate's name is [CANDIDATE_NAME].
They are applying for: [ROLE]
Experience level: [EXPERIENCE_LEVEL]

[ROLE_CONTEXT]

Use their name naturally. Keep a warm, professional tone and speak in short,
conversational sentences.`

var transitionAcks = map[string]string{
	stage.SelfIntro:      "[CANDIDATE_NAME], please go ahead and tell me about yourself.",
	stage.PastExperience: "Excellent introduction, thank you [CANDIDATE_NAME]! Now let's discuss your past work experience, particularly as it relates to the [ROLE] role.",
	stage.CompanyFit:     "Great insights into your experience, [CANDIDATE_NAME]! Now let's talk about company and role fit. I'd like to understand what draws you to this opportunity.",
	stage.Closing:        "Thank you so much for sharing all of that, [CANDIDATE_NAME]. I really enjoyed learning about your background and experience. We'll be in touch with next steps via email. Thank you again, and best of luck!",
}

var fallbackAcks = map[string]string{
	stage.SelfIntro:      "[CANDIDATE_NAME], please introduce yourself.",
	stage.PastExperience: "Thank you [CANDIDATE_NAME]! Let's discuss your experience.",
	stage.CompanyFit:     "Great insights! Let's talk about company and role fit.",
	stage.Closing:        "Thank you for sharing. Let me wrap up now.",
}

const closingFallback = "Thank you for your time, [CANDIDATE_NAME]. Best of luck!"

// roleFocus is checked in order; the first keyword contained in the role wins.
var roleFocus = []struct {
	keyword string
	focus   string
}{
	{"engineer", "technical skills, problem-solving, system design"},
	{"developer", "coding practices, frameworks, debugging"},
	{"software", "architecture, development process, code quality"},
	{"manager", "team leadership, project planning, stakeholder communication"},
	{"product", "product strategy, user research, roadmap"},
	{"designer", "design process, user research, collaboration"},
	{"analyst", "data analysis, business insights, technical tools"},
	{"devops", "infrastructure, CI/CD, monitoring"},
}

var levelGuidance = map[string]string{
	"entry":  "Focus on learning approach, academic/personal projects.",
	"junior": "Focus on recent projects, technical growth.",
	"mid":    "Focus on independent ownership, technical decisions.",
	"senior": "Focus on system design, mentoring, leadership.",
	"lead":   "Focus on architecture strategy, team guidance.",
	"staff":  "Focus on org-wide impact, technical strategy.",
}

// RoleContext returns a short focus note for the role and level. Unknown
// levels use the mid-level guidance.
func RoleContext(role, level string) string {
	lowerRole := strings.ToLower(role)
	lowerLevel := strings.ToLower(strings.TrimSpace(level))
	if lowerLevel == "" {
		lowerLevel = "mid"
	}

	focus := "technical experience and problem-solving"
	for _, rf := range roleFocus {
		if strings.Contains(lowerRole, rf.keyword) {
			focus = rf.focus
			break
		}
	}
	guidance, ok := levelGuidance[lowerLevel]
	if !ok {
		guidance = levelGuidance["mid"]
	}
	if role == "" {
		role = "position"
	}

	var sb strings.Builder
	sb.WriteString("For this " + role + " role (" + lowerLevel + " level):\n")
	sb.WriteString("- Key focus: " + focus + "\n")
	sb.WriteString("- " + guidance + "\n")
	return sb.String()
}

// SkipNotice is appended to the instructions when stages were skipped at the
// candidate's request.
func SkipNotice(skipped []stage.Stage) string {
	if len(skipped) == 0 {
		return ""
	}
	names := make([]string, len(skipped))
	for i, s := range skipped {
		names[i] = s.Label()
	}
	return "NOTE: The candidate asked to skip ahead. The following parts were skipped: " +
		strings.Join(names, ", ") + ". Do not return to them."
}

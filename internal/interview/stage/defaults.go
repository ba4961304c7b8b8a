package stage

import (
	"fmt"
	"time"
)

// Default returns the standard five-stage mock interview.
func Default() *Registry {
	r, err := New(Defaults()...)
	if err != nil {
		// The built-in table is static; an error here is a programming bug.
		panic(err)
	}
	return r
}

// Defaults returns the built-in stage definitions. The slice is freshly
// allocated on each call.
func Defaults() []Stage {
	return []Stage{
		{
			Name:                Welcome,
			DisplayName:         "Welcome",
			TimeLimit:           60 * time.Second,
			MinQuestions:        1,
			InstructionTemplate: welcomeInstructions,
			Fallback:            true,
		},
		{
			Name:                SelfIntro,
			DisplayName:         "Introduction",
			TimeLimit:           120 * time.Second,
			MinQuestions:        2,
			InstructionTemplate: selfIntroInstructions,
			Fallback:            true,
		},
		{
			Name:                PastExperience,
			DisplayName:         "Experience",
			TimeLimit:           240 * time.Second,
			MinQuestions:        5,
			InstructionTemplate: pastExperienceInstructions,
			Fallback:            true,
		},
		{
			Name:                CompanyFit,
			DisplayName:         "Company Fit",
			TimeLimit:           240 * time.Second,
			MinQuestions:        3,
			InstructionTemplate: companyFitInstructions,
			Fallback:            true,
		},
		{
			Name:                Closing,
			DisplayName:         "Closing",
			TimeLimit:           45 * time.Second,
			MinQuestions:        1,
			InstructionTemplate: closingInstructions,
			Fallback:            true,
		},
	}
}

// Override describes a partial stage definition. Zero fields keep the value
// of the built-in stage with the same name.
type Override struct {
	Name                string
	DisplayName         string
	TimeLimit           time.Duration
	MinQuestions        *int
	InstructionTemplate string
	Fallback            *bool
}

// FromOverrides builds a registry from overrides in the given order. Each
// override whose name matches a built-in stage starts from that stage;
// unknown names start empty and must supply a time limit. An empty overrides
// list yields [Default].
func FromOverrides(overrides []Override) (*Registry, error) {
	if len(overrides) == 0 {
		return Default(), nil
	}

	builtin := make(map[string]Stage)
	for _, s := range Defaults() {
		builtin[s.Name] = s
	}

	stages := make([]Stage, 0, len(overrides))
	for _, o := range overrides {
		s, ok := builtin[o.Name]
		if !ok {
			s = Stage{Name: o.Name, Fallback: true}
		}
		if o.DisplayName != "" {
			s.DisplayName = o.DisplayName
		}
		if o.TimeLimit > 0 {
			s.TimeLimit = o.TimeLimit
		}
		if o.MinQuestions != nil {
			s.MinQuestions = *o.MinQuestions
		}
		if o.InstructionTemplate != "" {
			s.InstructionTemplate = o.InstructionTemplate
		}
		if o.Fallback != nil {
			s.Fallback = *o.Fallback
		}
		stages = append(stages, s)
	}

	r, err := New(stages...)
	if err != nil {
		return nil, fmt.Errorf("stage: build from config: %w", err)
	}
	return r, nil
}

// ─── Instruction templates ───────────────────────────────────────────────────

const welcomeInstructions = `STAGE: WELCOME

Greet [CANDIDATE_NAME] warmly, introduce yourself as the interviewer for the
[ROLE] position and briefly explain the format: a short introduction, a
conversation about past experience, a discussion of company and role fit,
and a short closing.

Ask one question to confirm they are ready to begin. Once they confirm, call
transition_stage.`

const selfIntroInstructions = `STAGE: SELF INTRODUCTION

Invite [CANDIDATE_NAME] to introduce themselves. Listen for their background,
current role and what brought them to apply for the [ROLE] position.

Rules:
- Route every question through ask_question before speaking it.
- Call assess_response once after each complete candidate answer.
- Ask short follow-ups about anything they mention that is relevant.
- When you have a clear picture of who they are, call transition_stage.

[ROLE_CONTEXT]`

const pastExperienceInstructions = `STAGE: PAST EXPERIENCE

Explore [CANDIDATE_NAME]'s past work experience in depth as it relates to the
[ROLE] role at the [EXPERIENCE_LEVEL] level.

Rules:
- Route every question through ask_question before speaking it.
- Call assess_response once after each complete candidate answer.
- Ask about concrete projects, their personal contribution, challenges and
  outcomes. Prefer one focused question at a time.
- Never repeat a question that was already asked.
- Call transition_stage once the experience discussion is complete.

[ROLE_CONTEXT]

[DOCUMENT_CONTEXT]`

const companyFitInstructions = `STAGE: COMPANY FIT

Discuss why [CANDIDATE_NAME] is interested in this opportunity and how they
would fit the team and the [ROLE] role.

Rules:
- Route every question through ask_question before speaking it.
- Call assess_response once after each complete candidate answer.
- Cover motivation, preferred working style and what they expect from the
  role.
- Call transition_stage when the discussion is complete.

[DOCUMENT_CONTEXT]`

const closingInstructions = `STAGE: CLOSING

Thank [CANDIDATE_NAME] for their time, tell them the team will follow up
with next steps by email, and wish them luck. Keep it brief and do not ask
further interview questions.`

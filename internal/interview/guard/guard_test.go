package guard

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/stage"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func selfIntro() stage.Stage {
	return stage.Stage{Name: stage.SelfIntro, DisplayName: "Introduction", TimeLimit: 100 * time.Second, MinQuestions: 2}
}

func stateWithQuestions(stageName string, n int) *interview.State {
	st := interview.NewState(stageName, interview.Profile{}, t0)
	for i := range n {
		st.RecordQuestion(strings.Repeat("q", i+1), t0)
	}
	return st
}

func TestCanTransitionVoluntarily(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		asked     int
		want      Decision
		remaining int
		contains  string
	}{
		{name: "none asked", asked: 0, want: Deny, remaining: 2, contains: "2 more questions"},
		{name: "one short", asked: 1, want: Deny, remaining: 1, contains: "1 more question"},
		{name: "minimum met", asked: 2, want: Allow},
		{name: "above minimum", asked: 5, want: Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := stateWithQuestions(stage.SelfIntro, tt.asked)
			got := CanTransitionVoluntarily(st, selfIntro())
			if got.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v", got.Decision, tt.want)
			}
			if got.Remaining != tt.remaining {
				t.Errorf("Remaining = %d, want %d", got.Remaining, tt.remaining)
			}
			if !strings.Contains(got.Message, tt.contains) {
				t.Errorf("Message = %q, want it to contain %q", got.Message, tt.contains)
			}
		})
	}
}

func TestUrgency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		asked   int
		depth   int
		want    Level
	}{
		{name: "fresh stage", elapsed: 10 * time.Second, want: Low},
		{name: "half used", elapsed: 50 * time.Second, want: Medium},
		{name: "quarter left", elapsed: 75 * time.Second, want: High},
		{name: "ten percent left", elapsed: 90 * time.Second, want: Critical},
		{name: "overtime", elapsed: 150 * time.Second, want: Critical},
		{name: "deep answer with minimum", elapsed: 10 * time.Second, asked: 2, depth: 4, want: High},
		{name: "deep answer without minimum", elapsed: 10 * time.Second, asked: 1, depth: 5, want: Low},
		{name: "shallow answer with minimum", elapsed: 10 * time.Second, asked: 2, depth: 3, want: Low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := stateWithQuestions(stage.SelfIntro, tt.asked)
			st.LastDepthScore = tt.depth
			if got := Urgency(st, selfIntro(), t0.Add(tt.elapsed)); got != tt.want {
				t.Errorf("Urgency = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	t.Parallel()

	st := interview.NewState(stage.SelfIntro, interview.Profile{}, t0)
	st.RecordQuestion(interview.Normalize("Tell me about yourself"), t0)

	tests := []struct {
		q    string
		want bool
	}{
		{q: "tell me about yourself!", want: true},
		{q: "TELL ME ABOUT YOURSELF", want: true},
		{q: "about yourself", want: true},
		{q: "Could you tell me about yourself in two minutes?", want: true},
		{q: "What is your favourite project?", want: false},
		{q: "...", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			t.Parallel()
			if got := IsDuplicate(st, interview.Normalize(tt.q)); got != tt.want {
				t.Errorf("IsDuplicate(%q) = %v, want %v", tt.q, got, tt.want)
			}
		})
	}
}

func TestDuplicateChecker_Fuzzy(t *testing.T) {
	t.Parallel()

	st := interview.NewState(stage.SelfIntro, interview.Profile{}, t0)
	st.RecordQuestion(interview.Normalize("What motivates you at work?"), t0)
	q := interview.Normalize("What motivated you at work?")

	if (DuplicateChecker{}).IsDuplicate(st, q) {
		t.Error("zero checker should not fuzzy match")
	}
	if !(DuplicateChecker{Similarity: 0.9}).IsDuplicate(st, q) {
		t.Error("expected near-duplicate at 0.9 similarity")
	}
	if (DuplicateChecker{Similarity: 0.9}).IsDuplicate(st, interview.Normalize("Describe a conflict with a colleague")) {
		t.Error("unrelated question flagged as duplicate")
	}
}

func TestShouldForceTransition(t *testing.T) {
	t.Parallel()

	pe := stage.Stage{Name: stage.PastExperience, TimeLimit: 180 * time.Second, MinQuestions: 5}

	t.Run("absolute deadline ignores questions", func(t *testing.T) {
		t.Parallel()
		st := interview.NewState(stage.PastExperience, interview.Profile{}, t0)
		p := Policy{Mode: Absolute}
		if ShouldForceTransition(st, pe, t0.Add(179*time.Second), p) {
			t.Error("forced before deadline")
		}
		if !ShouldForceTransition(st, pe, t0.Add(181*time.Second), p) {
			t.Error("not forced after deadline")
		}
	})

	t.Run("absolute deadline ignores activity", func(t *testing.T) {
		t.Parallel()
		st := interview.NewState(stage.PastExperience, interview.Profile{}, t0)
		st.Touch(t0.Add(170 * time.Second))
		if !ShouldForceTransition(st, pe, t0.Add(181*time.Second), Policy{Mode: Absolute}) {
			t.Error("activity must not delay an absolute deadline")
		}
	})

	t.Run("inactivity resets on activity", func(t *testing.T) {
		t.Parallel()
		st := interview.NewState(stage.PastExperience, interview.Profile{}, t0)
		st.Touch(t0.Add(100 * time.Second))
		p := Policy{Mode: Inactivity}
		if ShouldForceTransition(st, pe, t0.Add(181*time.Second), p) {
			t.Error("forced despite recent activity")
		}
		if !ShouldForceTransition(st, pe, t0.Add(281*time.Second), p) {
			t.Error("not forced after inactivity limit")
		}
	})

	t.Run("inactivity ceiling", func(t *testing.T) {
		t.Parallel()
		st := interview.NewState(stage.PastExperience, interview.Profile{}, t0)
		st.Touch(t0.Add(350 * time.Second))
		p := Policy{Mode: Inactivity, CeilingFactor: 2}
		if !ShouldForceTransition(st, pe, t0.Add(360*time.Second), p) {
			t.Error("ceiling not enforced")
		}
	})

	t.Run("silent session under inactivity", func(t *testing.T) {
		t.Parallel()
		st := interview.NewState(stage.PastExperience, interview.Profile{}, t0)
		if !ShouldForceTransition(st, pe, t0.Add(181*time.Second), Policy{}) {
			t.Error("silent stage should be forced at its limit")
		}
	})
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": Inactivity, "inactivity": Inactivity, "absolute": Absolute} {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestShouldWarn(t *testing.T) {
	t.Parallel()

	st := interview.NewState(stage.SelfIntro, interview.Profile{}, t0)
	stg := selfIntro()
	if ShouldWarn(st, stg, t0.Add(50*time.Second), 0.8) {
		t.Error("warned too early")
	}
	if !ShouldWarn(st, stg, t0.Add(85*time.Second), 0.8) {
		t.Error("expected warning at 85%")
	}
	if ShouldWarn(st, stg, t0.Add(120*time.Second), 0.8) {
		t.Error("no warning once overtime")
	}
}

func TestTime(t *testing.T) {
	t.Parallel()

	st := interview.NewState(stage.SelfIntro, interview.Profile{}, t0)
	ts := Time(st, selfIntro(), t0.Add(25*time.Second))
	if ts.Remaining != 75*time.Second {
		t.Errorf("Remaining = %v", ts.Remaining)
	}
	if ts.RemainingFraction != 0.75 {
		t.Errorf("RemainingFraction = %v", ts.RemainingFraction)
	}
	if ts.Overtime {
		t.Error("unexpected overtime")
	}
}

package stage

import (
	"errors"
	"testing"
	"time"
)

func TestDefault_Order(t *testing.T) {
	t.Parallel()

	r := Default()
	want := []string{Welcome, SelfIntro, PastExperience, CompanyFit, Closing}
	got := r.Stages()
	if len(got) != len(want) {
		t.Fatalf("got %d stages, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("stage[%d] = %q, want %q", i, got[i].Name, name)
		}
	}
	if r.First().Name != Welcome {
		t.Errorf("First() = %q, want %q", r.First().Name, Welcome)
	}
	if r.Terminal().Name != Closing {
		t.Errorf("Terminal() = %q, want %q", r.Terminal().Name, Closing)
	}
}

func TestRegistry_Next(t *testing.T) {
	t.Parallel()

	r := Default()
	tests := []struct {
		name   string
		from   string
		want   string
		wantOK bool
	}{
		{name: "welcome", from: Welcome, want: SelfIntro, wantOK: true},
		{name: "company fit", from: CompanyFit, want: Closing, wantOK: true},
		{name: "terminal", from: Closing, wantOK: false},
		{name: "unknown", from: "lunch", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := r.Next(tt.from)
			if ok != tt.wantOK {
				t.Fatalf("Next(%q) ok = %v, want %v", tt.from, ok, tt.wantOK)
			}
			if ok && got.Name != tt.want {
				t.Errorf("Next(%q) = %q, want %q", tt.from, got.Name, tt.want)
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	r := Default()

	s, err := r.Resolve(PastExperience)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.MinQuestions != 5 || s.TimeLimit != 240*time.Second {
		t.Errorf("past_experience = %+v", s)
	}

	_, err = r.Resolve("lunch")
	var unknown *UnknownStageError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStageError, got %v", err)
	}
	if unknown.Name != "lunch" {
		t.Errorf("Name = %q, want %q", unknown.Name, "lunch")
	}
}

func TestRegistry_Between(t *testing.T) {
	t.Parallel()

	r := Default()

	got := r.Between(SelfIntro, Closing)
	if len(got) != 2 || got[0].Name != PastExperience || got[1].Name != CompanyFit {
		t.Errorf("Between(self_intro, closing) = %v", got)
	}
	if got := r.Between(SelfIntro, PastExperience); got != nil {
		t.Errorf("adjacent stages should yield nil, got %v", got)
	}
	if got := r.Between(Closing, Welcome); got != nil {
		t.Errorf("backwards range should yield nil, got %v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stages []Stage
	}{
		{name: "empty"},
		{name: "missing name", stages: []Stage{{TimeLimit: time.Second}}},
		{name: "duplicate", stages: []Stage{
			{Name: "a", TimeLimit: time.Second},
			{Name: "a", TimeLimit: time.Second},
		}},
		{name: "zero limit", stages: []Stage{{Name: "a"}}},
		{name: "negative minimum", stages: []Stage{{Name: "a", TimeLimit: time.Second, MinQuestions: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.stages...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestFromOverrides(t *testing.T) {
	t.Parallel()

	t.Run("empty yields default", func(t *testing.T) {
		t.Parallel()
		r, err := FromOverrides(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Len() != 5 {
			t.Errorf("Len() = %d, want 5", r.Len())
		}
	})

	t.Run("partial override keeps builtin fields", func(t *testing.T) {
		t.Parallel()
		three := 3
		off := false
		r, err := FromOverrides([]Override{
			{Name: Welcome, Fallback: &off},
			{Name: SelfIntro, MinQuestions: &three},
			{Name: Closing, TimeLimit: 90 * time.Second},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		w, _ := r.Resolve(Welcome)
		if w.Fallback {
			t.Error("welcome fallback should be disabled")
		}
		s, _ := r.Resolve(SelfIntro)
		if s.MinQuestions != 3 || s.DisplayName != "Introduction" {
			t.Errorf("self_intro = %+v", s)
		}
		c, _ := r.Resolve(Closing)
		if c.TimeLimit != 90*time.Second || c.InstructionTemplate == "" {
			t.Errorf("closing = %+v", c)
		}
		if _, ok := r.Next(SelfIntro); !ok {
			t.Error("expected a stage after self_intro")
		}
	})

	t.Run("custom stage needs a limit", func(t *testing.T) {
		t.Parallel()
		if _, err := FromOverrides([]Override{{Name: "whiteboard"}}); err == nil {
			t.Error("expected error for custom stage without time limit")
		}
	})
}

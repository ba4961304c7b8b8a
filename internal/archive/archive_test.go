package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/session"
)

func snapshot(ended time.Time) interview.Snapshot {
	return interview.Snapshot{
		CurrentStage:      "closing",
		StartedAt:         ended.Add(-10 * time.Minute),
		QuestionsAsked:    []string{"are you ready", "tell me about yourself"},
		QuestionsPerStage: map[string]int{"welcome": 1, "self_intro": 1},
		KeyPoints:         []interview.KeyPoint{{Stage: "self_intro", Text: "Go developer"}},
		SkippedStages:     []string{"past_experience"},
		Profile: interview.Profile{
			Name:            "Ada",
			Role:            "Software Engineer",
			ExperienceLevel: "senior",
			Resume:          "Ten years of distributed systems.",
		},
		TransitionCount:   3,
		ForcedTransitions: 1,
		Finalized:         true,
		EndedBy:           "completed",
		EndedAt:           ended,
	}
}

func TestNewRecord(t *testing.T) {
	t.Parallel()
	ended := time.Unix(1_700_000_000, 0)
	snap := snapshot(ended)
	tr := []session.Entry{{Speaker: session.SpeakerInterviewer, Text: "Hi"}}

	r := NewRecord("s1", snap, tr)
	if r.CandidateName != "Ada" || r.Role != "Software Engineer" || r.ExperienceLevel != "senior" {
		t.Errorf("candidate fields = %+v", r)
	}
	if !r.HasResume || r.HasJobDescription {
		t.Errorf("HasResume = %v, HasJobDescription = %v", r.HasResume, r.HasJobDescription)
	}
	if r.FinalStage != "closing" || r.EndedBy != "completed" || !r.EndedAt.Equal(ended) {
		t.Errorf("ending fields = %+v", r)
	}
	if len(r.Transcript) != 1 || r.ForcedTransitions != 1 {
		t.Errorf("record = %+v", r)
	}

	snap.SkippedStages[0] = "mutated"
	snap.QuestionsPerStage["welcome"] = 99
	if r.SkippedStages[0] != "past_experience" || r.QuestionsPerStage["welcome"] != 1 {
		t.Error("record shares memory with the snapshot")
	}
}

func TestRecord_Validate(t *testing.T) {
	t.Parallel()
	r := Record{}
	err := r.Validate()
	if err == nil {
		t.Fatal("expected error for empty record")
	}
	for _, want := range []string{"id is required", "final stage is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want %q", err, want)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	for i, role := range []string{"Software Engineer", "Product Manager", "software engineer"} {
		r := NewRecord(string(rune('a'+i)), snapshot(base.Add(time.Duration(i)*time.Hour)), nil)
		r.Role = role
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.Get(ctx, "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Role != "Product Manager" {
		t.Errorf("Get(b) = %+v", got)
	}
	if missing, err := s.Get(ctx, "zzz"); err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}

	all, _ := s.List(ctx, ListOptions{})
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("List order = %v", ids(all))
	}
	eng, _ := s.List(ctx, ListOptions{Role: "SOFTWARE ENGINEER", Limit: 1})
	if len(eng) != 1 || eng[0].ID != "c" {
		t.Errorf("filtered List = %v", ids(eng))
	}

	if err := s.Save(ctx, Record{ID: "bad"}); err == nil {
		t.Error("expected validation error")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func ids(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

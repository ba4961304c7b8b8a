package config

import (
	"cmp"
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
//
// Interview settings are hot-reloadable: they apply to interviews started
// after the reload, never to running ones. Changes to the LLM or store
// sections are reported but need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StagesChanged bool        // true if any stage was added, removed, reordered or edited
	StageChanges  []StageDiff // per-stage diffs, sorted by name
	OrderChanged  bool

	FallbackChanged   bool
	DuplicatesChanged bool
	DocumentsChanged  bool

	// RestartRequired lists sections whose changes are ignored until restart.
	RestartRequired []string
}

// StageDiff describes what changed for a single stage between two configs.
type StageDiff struct {
	Name                string
	DisplayNameChanged  bool
	TimeLimitChanged    bool
	MinQuestionsChanged bool
	InstructionsChanged bool
	FallbackChanged     bool
	Added               bool
	Removed             bool
}

// InterviewChanged reports whether any hot-reloadable interview setting
// differs.
func (d ConfigDiff) InterviewChanged() bool {
	return d.StagesChanged || d.FallbackChanged || d.DuplicatesChanged || d.DocumentsChanged
}

// Empty reports whether nothing the server cares about changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.InterviewChanged() && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Stages keyed by name.
	oldStages := make(map[string]*StageConfig, len(old.Interview.Stages))
	for i := range old.Interview.Stages {
		oldStages[old.Interview.Stages[i].Name] = &old.Interview.Stages[i]
	}
	newStages := make(map[string]*StageConfig, len(new.Interview.Stages))
	for i := range new.Interview.Stages {
		newStages[new.Interview.Stages[i].Name] = &new.Interview.Stages[i]
	}

	for _, name := range slices.Sorted(maps.Keys(oldStages)) {
		newStage, exists := newStages[name]
		if !exists {
			d.StageChanges = append(d.StageChanges, StageDiff{Name: name, Removed: true})
			continue
		}
		if sd := diffStage(name, oldStages[name], newStage); sd.changed() {
			d.StageChanges = append(d.StageChanges, sd)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(newStages)) {
		if _, exists := oldStages[name]; !exists {
			d.StageChanges = append(d.StageChanges, StageDiff{Name: name, Added: true})
		}
	}
	slices.SortFunc(d.StageChanges, func(a, b StageDiff) int { return cmp.Compare(a.Name, b.Name) })

	d.OrderChanged = !slices.Equal(stageNames(old.Interview.Stages), stageNames(new.Interview.Stages))
	d.StagesChanged = len(d.StageChanges) > 0 || d.OrderChanged

	d.FallbackChanged = old.Interview.Fallback != new.Interview.Fallback
	d.DuplicatesChanged = old.Interview.Duplicates != new.Interview.Duplicates
	d.DocumentsChanged = old.Interview.IncludeDocuments != new.Interview.IncludeDocuments

	if !llmEqual(old.LLM, new.LLM) {
		d.RestartRequired = append(d.RestartRequired, "llm")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.MaxSessions != new.Server.MaxSessions {
		d.RestartRequired = append(d.RestartRequired, "server.max_sessions")
	}
	if old.Server.ShutdownTimeout != new.Server.ShutdownTimeout {
		d.RestartRequired = append(d.RestartRequired, "server.shutdown_timeout")
	}
	if !ptrEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Observe != new.Observe {
		d.RestartRequired = append(d.RestartRequired, "observe")
	}

	return d
}

// diffStage compares two stage configs with the same name.
func diffStage(name string, old, new *StageConfig) StageDiff {
	return StageDiff{
		Name:                name,
		DisplayNameChanged:  old.DisplayName != new.DisplayName,
		TimeLimitChanged:    old.TimeLimit != new.TimeLimit,
		MinQuestionsChanged: !ptrEqual(old.MinQuestions, new.MinQuestions),
		InstructionsChanged: old.Instructions != new.Instructions,
		FallbackChanged:     !ptrEqual(old.Fallback, new.Fallback),
	}
}

func (sd StageDiff) changed() bool {
	return sd.DisplayNameChanged || sd.TimeLimitChanged || sd.MinQuestionsChanged ||
		sd.InstructionsChanged || sd.FallbackChanged
}

func stageNames(stages []StageConfig) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func llmEqual(a, b LLMConfig) bool {
	if a.Temperature != b.Temperature || a.MaxToolRounds != b.MaxToolRounds ||
		a.HistoryTokens != b.HistoryTokens || a.Feedback != b.Feedback {
		return false
	}
	return providerEqual(a.Provider, b.Provider) &&
		slices.EqualFunc(a.Fallbacks, b.Fallbacks, providerEqual)
}

func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

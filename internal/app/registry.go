package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/mockflow/internal/archive"
	"github.com/MrWong99/mockflow/internal/config"
	"github.com/MrWong99/mockflow/internal/feedback"
	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/mcp/server"
	"github.com/MrWong99/mockflow/internal/mcp/tools"
	interviewtools "github.com/MrWong99/mockflow/internal/mcp/tools/interview"
	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/internal/session"
	"github.com/MrWong99/mockflow/internal/turn"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

var (
	// ErrSessionNotFound is returned for an unknown or already stopped session.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrAtCapacity is returned by [Registry.Start] when server.max_sessions
	// interviews are already running.
	ErrAtCapacity = errors.New("app: too many running interviews")

	// ErrShuttingDown is returned by [Registry.Start] once [Registry.StopAll]
	// has been called.
	ErrShuttingDown = errors.New("app: shutting down")
)

// SessionInfo holds metadata about a running interview.
type SessionInfo struct {
	ID              string    `json:"id"`
	Candidate       string    `json:"candidate"`
	Role            string    `json:"role"`
	ExperienceLevel string    `json:"experience_level"`
	Stage           string    `json:"stage"`
	StartedAt       time.Time `json:"started_at"`
	Subscribers     int       `json:"subscribers"`
}

// Session is one running interview and everything wired to it.
type Session struct {
	id        string
	startedAt time.Time
	ctl       *controller.Controller
	driver    *turn.Driver
	history   *session.History
	mcp       *server.Server
	hub       *Hub
	forwarder *turn.Forwarder
	cancel    context.CancelFunc
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Controller returns the interview controller.
func (s *Session) Controller() *controller.Controller { return s.ctl }

// Driver returns the in-process turn driver, or nil when no LLM is
// configured.
func (s *Session) Driver() *turn.Driver { return s.driver }

// History returns the conversation history and transcript.
func (s *Session) History() *session.History { return s.history }

// MCP returns the session's MCP server.
func (s *Session) MCP() *server.Server { return s.mcp }

// Hub returns the session's event hub.
func (s *Session) Hub() *Hub { return s.hub }

// Info returns a summary of the session.
func (s *Session) Info() SessionInfo {
	p := s.ctl.Snapshot().Profile
	return SessionInfo{
		ID:              s.id,
		Candidate:       p.Name,
		Role:            p.Role,
		ExperienceLevel: p.ExperienceLevel,
		Stage:           s.ctl.Stage().Name,
		StartedAt:       s.startedAt,
		Subscribers:     s.hub.Subscribers(),
	}
}

// RegistryConfig holds all dependencies for a [Registry].
type RegistryConfig struct {
	// Interview supplies the stage table and fallback settings of new
	// sessions. Replace it at runtime with [Registry.SetInterview].
	Interview config.InterviewConfig

	// LLM tunes the in-process turn driver.
	LLM config.LLMConfig

	// Provider backs the turn driver and history summaries. Nil disables
	// the driver; interviews are then driven over HTTP or MCP only.
	Provider llm.Provider

	// Store receives finalized interviews. Nil disables archiving.
	Store archive.Store

	// Feedback, when set, writes coaching feedback into archived records.
	Feedback *feedback.Generator

	// MaxSessions caps running interviews. Zero means no limit.
	MaxSessions int

	Metrics *observe.Metrics
}

// Registry manages the lifecycle of interview sessions. Each session owns an
// independent controller; the registry only maps IDs to sessions.
// All exported methods are safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	interview config.InterviewConfig
	closed    bool

	llmCfg   config.LLMConfig
	provider llm.Provider
	store    archive.Store
	feedback *feedback.Generator
	limit    int
	metrics  *observe.Metrics

	// wg tracks stops started by controller terminators.
	wg sync.WaitGroup
}

// NewRegistry creates a Registry with the given dependencies.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		sessions:  make(map[string]*Session),
		interview: cfg.Interview,
		llmCfg:    cfg.LLM,
		provider:  cfg.Provider,
		store:     cfg.Store,
		feedback:  cfg.Feedback,
		limit:     cfg.MaxSessions,
		metrics:   cfg.Metrics,
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// SetInterview replaces the interview settings used by sessions started
// from now on. Running sessions keep the settings they started with.
func (r *Registry) SetInterview(c config.InterviewConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interview = c
}

// HasDriver reports whether sessions get an in-process turn driver.
func (r *Registry) HasDriver() bool { return r.provider != nil }

// Start begins a new interview for profile and returns its session.
func (r *Registry) Start(ctx context.Context, profile interview.Profile) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrShuttingDown
	}
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return nil, ErrAtCapacity
	}

	icfg := r.interview
	stages, err := icfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("app: stages: %w", err)
	}
	policy, err := icfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("app: fallback policy: %w", err)
	}
	profile.IncludeDocuments = profile.IncludeDocuments || icfg.IncludeDocuments

	id := uuid.NewString()
	hub := NewHub(id, stages.First().Name)
	fwd := turn.NewForwarder(hub)
	sinks := &fanout{hub, fwd}

	fb := icfg.Fallback
	ctl := controller.New(id, profile,
		controller.WithStages(stages),
		controller.WithPolicy(policy),
		controller.WithDuplicateChecker(icfg.DuplicateChecker()),
		controller.WithPollInterval(fb.PollInterval),
		controller.WithClosingGrace(fb.ClosingGrace),
		controller.WithWarningThreshold(fb.Warning()),
		controller.WithEventSink(sinks),
		controller.WithTerminator(terminator{r}),
		controller.WithMetrics(r.metrics),
	)

	set, err := tools.NewSet(r.metrics, interviewtools.Tools(ctl)...)
	if err != nil {
		return nil, fmt.Errorf("app: interview tools: %w", err)
	}

	histCfg := session.HistoryConfig{MaxTokens: r.llmCfg.HistoryTokens}
	if r.provider != nil {
		histCfg.Summariser = session.NewLLMSummariser(r.provider)
	}
	history := session.NewHistory(histCfg)

	s := &Session{
		id:        id,
		startedAt: time.Now().UTC(),
		ctl:       ctl,
		history:   history,
		hub:       hub,
		forwarder: fwd,
		mcp: server.New("mockflow-interview", set,
			server.WithInstructions(ctl.Instructions()),
			server.WithLogger(slog.Default().With("session_id", id)),
		),
	}

	if r.provider != nil {
		d, err := turn.NewDriver(turn.DriverConfig{
			Controls:      ctl,
			LLM:           r.provider,
			Tools:         set,
			History:       history,
			MaxToolRounds: r.llmCfg.MaxToolRounds,
			Temperature:   r.llmCfg.Temperature,
			Metrics:       r.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("app: turn driver: %w", err)
		}
		*sinks = append(*sinks, d)
		s.driver = d
	}

	// Session-scoped context: outlives the request that started it.
	sctx, cancel := context.WithCancel(observe.WithSession(context.Background(), id))
	s.cancel = cancel
	go fwd.Run(sctx)
	ctl.Start(sctx)

	r.sessions[id] = s
	r.metrics.ActiveInterviews.Add(ctx, 1)

	slog.Info("session started",
		"session_id", id,
		"role", profile.Role,
		"level", profile.ExperienceLevel,
		"stages", stages.Len(),
		"driver", s.driver != nil,
	)
	return s, nil
}

// Get returns the running session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of running sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns the running sessions, oldest first.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// Stop ends the session with id: it stops the fallback loop, finalizes the
// state with endedBy (unless the controller already finalized it), archives
// the record and closes the event stream. Archive and feedback failures are
// logged; the returned record is complete either way.
func (r *Registry) Stop(ctx context.Context, id, endedBy string) (archive.Record, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return archive.Record{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ctx = observe.WithSession(ctx, id)
	log := observe.Logger(ctx)

	s.ctl.Stop()
	snap := s.ctl.Finalize(ctx, endedBy)
	s.forwarder.Close()

	rec := archive.NewRecord(id, snap, s.history.Transcript())
	if r.feedback != nil {
		text, err := r.feedback.Generate(ctx, snap.Profile, rec)
		switch {
		case errors.Is(err, feedback.ErrEmptyTranscript):
			log.Debug("session: no transcript, feedback skipped")
		case err != nil:
			log.Warn("session: feedback generation failed", "err", err)
		default:
			rec.Feedback = text
		}
	}
	if r.store != nil {
		if err := r.store.Save(ctx, rec); err != nil {
			log.Error("session: archive failed", "err", err)
		}
	}

	s.hub.End(snap)
	s.cancel()
	r.metrics.ActiveInterviews.Add(ctx, -1)

	log.Info("session stopped",
		"ended_by", snap.EndedBy,
		"stage", snap.CurrentStage,
		"questions", len(snap.QuestionsAsked),
		"duration", time.Since(s.startedAt).Round(time.Second),
	)
	return rec, nil
}

// StopAll stops every running session with endedBy and rejects new ones.
// It returns ctx's error if the deadline passes before all sessions are
// archived.
func (r *Registry) StopAll(ctx context.Context, endedBy string) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			slog.Warn("stop sessions: deadline exceeded", "remaining", len(ids)-i)
			return err
		}
		if _, err := r.Stop(ctx, id, endedBy); err != nil && !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("stop sessions: stop failed", "session_id", id, "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminator stops a session the controller ended on its own. It runs on
// the fallback loop goroutine, so the stop happens asynchronously.
type terminator struct{ r *Registry }

func (t terminator) Terminate(sessionID string, err error) {
	endedBy := controller.EndedCompleted
	if err != nil {
		endedBy = controller.EndedClosingTimeout
	}
	t.r.wg.Add(1)
	go func() {
		defer t.r.wg.Done()
		if _, err := t.r.Stop(context.Background(), sessionID, endedBy); err != nil && !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("session: stop after termination failed", "session_id", sessionID, "err", err)
		}
	}()
}

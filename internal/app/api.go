package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/mockflow/internal/archive"
	"github.com/MrWong99/mockflow/internal/interview"
	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/interview/stage"
	"github.com/MrWong99/mockflow/internal/mcp/server"
	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/internal/session"
)

// maxBodyBytes bounds request bodies. Resumes and job descriptions are the
// largest inputs.
const maxBodyBytes = 1 << 20

// eventWriteTimeout bounds a single websocket write.
const eventWriteTimeout = 5 * time.Second

// API serves the interview HTTP endpoints.
type API struct {
	reg   *Registry
	store archive.Store
}

// NewAPI creates an API over reg. store backs the archive endpoints and may
// be nil.
func NewAPI(reg *Registry, store archive.Store) *API {
	return &API{reg: reg, store: store}
}

// Register adds the API routes to mux:
//
//	POST   /sessions                  start an interview
//	GET    /sessions                  list running interviews
//	GET    /sessions/{id}             state snapshot and progress
//	DELETE /sessions/{id}             end, archive and stop
//	POST   /sessions/{id}/actions     tagged controller request
//	POST   /sessions/{id}/skip        candidate skip request
//	POST   /sessions/{id}/speech      speech activity from a voice pipeline
//	POST   /sessions/{id}/turn        one turn of the built-in LLM driver
//	GET    /sessions/{id}/events      websocket event stream
//	       /sessions/{id}/mcp         MCP streamable HTTP endpoint
//	GET    /archive                   archived interviews
//	GET    /archive/{id}              one archived interview
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", a.handleStart)
	mux.HandleFunc("GET /sessions", a.handleList)
	mux.HandleFunc("GET /sessions/{id}", a.handleGet)
	mux.HandleFunc("DELETE /sessions/{id}", a.handleStop)
	mux.HandleFunc("POST /sessions/{id}/actions", a.handleAction)
	mux.HandleFunc("POST /sessions/{id}/skip", a.handleSkip)
	mux.HandleFunc("POST /sessions/{id}/speech", a.handleSpeech)
	mux.HandleFunc("POST /sessions/{id}/turn", a.handleTurn)
	mux.HandleFunc("GET /sessions/{id}/events", a.handleEvents)
	mux.Handle("/sessions/{id}/mcp", server.Handler(func(r *http.Request) *server.Server {
		if s, ok := a.reg.Get(r.PathValue("id")); ok {
			return s.MCP()
		}
		return nil
	}))
	mux.HandleFunc("GET /archive", a.handleArchiveList)
	mux.HandleFunc("GET /archive/{id}", a.handleArchiveGet)
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// startRequest is the JSON body for POST /sessions.
type startRequest struct {
	Candidate        interview.Profile `json:"candidate"`
	IncludeDocuments bool              `json:"include_documents"`
}

// startResponse is returned from POST /sessions.
type startResponse struct {
	ID           string `json:"id"`
	Stage        string `json:"stage"`
	Instructions string `json:"instructions"`
	Driver       bool   `json:"driver"`
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Candidate.IncludeDocuments = req.Candidate.IncludeDocuments || req.IncludeDocuments

	s, err := a.reg.Start(r.Context(), req.Candidate)
	switch {
	case errors.Is(err, ErrAtCapacity), errors.Is(err, ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ctl := s.Controller()
	writeJSON(w, http.StatusCreated, startResponse{
		ID:           s.ID(),
		Stage:        ctl.Stage().Name,
		Instructions: ctl.Instructions(),
		Driver:       s.Driver() != nil,
	})
}

func (a *API) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.reg.List())
}

// sessionResponse is returned from GET /sessions/{id}.
type sessionResponse struct {
	Info         SessionInfo         `json:"info"`
	Progress     controller.Progress `json:"progress"`
	Instructions string              `json:"instructions"`
	Snapshot     interview.Snapshot  `json:"snapshot"`
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	ctl := s.Controller()
	writeJSON(w, http.StatusOK, sessionResponse{
		Info:         s.Info(),
		Progress:     ctl.Progress(),
		Instructions: ctl.Instructions(),
		Snapshot:     ctl.Snapshot(),
	})
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	rec, err := a.reg.Stop(r.Context(), r.PathValue("id"), controller.EndedTerminated)
	if errors.Is(err, ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ─── Controller requests ─────────────────────────────────────────────────────

// actionRequest is the JSON body for POST /sessions/{id}/actions. Type
// selects which of the remaining fields are read.
type actionRequest struct {
	Type      string   `json:"type"`
	Question  string   `json:"question"`
	Depth     int      `json:"depth_score"`
	KeyPoints []string `json:"key_points"`
	Reason    string   `json:"reason"`
	Target    string   `json:"target_stage"`
}

func (req actionRequest) request() (controller.Request, error) {
	switch req.Type {
	case controller.KindAskQuestion:
		if strings.TrimSpace(req.Question) == "" {
			return nil, errors.New("question must not be empty")
		}
		return controller.AskQuestion{Question: req.Question}, nil
	case controller.KindAssessResponse:
		return controller.AssessResponse{Depth: req.Depth, KeyPoints: req.KeyPoints}, nil
	case controller.KindRequestTransition:
		return controller.RequestTransition{Reason: req.Reason}, nil
	case controller.KindSkipRequest:
		if strings.TrimSpace(req.Target) == "" {
			return nil, errors.New("target_stage must not be empty")
		}
		return controller.SkipRequest{Target: req.Target}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", req.Type)
	}
}

// actionResponse wraps the typed controller result.
type actionResponse struct {
	Type   string `json:"type"`
	Result any    `json:"result"`
}

func (a *API) handleAction(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var body actionRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	a.dispatch(r.Context(), w, s, req)
}

// skipRequest is the JSON body for POST /sessions/{id}/skip.
type skipRequest struct {
	Target string `json:"target"`
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var body skipRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Target) == "" {
		writeError(w, http.StatusUnprocessableEntity, errors.New("target must not be empty"))
		return
	}
	a.dispatch(r.Context(), w, s, controller.SkipRequest{Target: body.Target})
}

func (a *API) dispatch(ctx context.Context, w http.ResponseWriter, s *Session, req controller.Request) {
	res, err := s.Controller().Dispatch(observe.WithSession(ctx, s.ID()), req)
	var (
		scoreErr *controller.InvalidScoreError
		stageErr *stage.UnknownStageError
	)
	switch {
	case errors.As(err, &scoreErr), errors.As(err, &stageErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, controller.ErrFinalized):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, actionResponse{Type: req.Kind(), Result: res})
	}
}

// ─── Speech and turns ────────────────────────────────────────────────────────

// Speakers accepted by POST /sessions/{id}/speech.
const (
	speakerUser  = "user"
	speakerAgent = "agent"
)

// speechRequest is the JSON body for POST /sessions/{id}/speech.
type speechRequest struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func (a *API) handleSpeech(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var body speechRequest
	if !decodeBody(w, r, &body) {
		return
	}

	ctx := observe.WithSession(r.Context(), s.ID())
	ctl := s.Controller()
	entry := session.Entry{Stage: ctl.Stage().Name, Text: strings.TrimSpace(body.Text), At: time.Now()}
	switch body.Speaker {
	case speakerUser:
		ctl.NotifyUserSpeech(ctx)
		entry.Speaker = session.SpeakerCandidate
	case speakerAgent:
		ctl.NotifyAgentSpeech(ctx, body.Text)
		entry.Speaker = session.SpeakerInterviewer
	default:
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("speaker must be %q or %q", speakerUser, speakerAgent))
		return
	}
	if entry.Text != "" {
		s.History().Record(entry)
	}
	w.WriteHeader(http.StatusNoContent)
}

// turnRequest is the JSON body for POST /sessions/{id}/turn.
type turnRequest struct {
	Text string `json:"text"`
}

func (a *API) handleTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	d := s.Driver()
	if d == nil {
		writeError(w, http.StatusNotImplemented, errors.New("no LLM provider configured"))
		return
	}
	var body turnRequest
	if !decodeBody(w, r, &body) {
		return
	}
	reply, err := d.Turn(r.Context(), body.Text)
	if err != nil {
		observe.Logger(observe.WithSession(r.Context(), s.ID())).Warn("turn failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// ─── Event stream ────────────────────────────────────────────────────────────

// handleEvents upgrades to a websocket and streams the session's [Message]s,
// starting with the current instructions. The stream closes normally once
// the interview ends. Client messages are ignored.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	msgs, unsubscribe := s.Hub().Subscribe()
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("events: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	ctl := s.Controller()
	hello := Message{
		Type:         MsgInstructions,
		SessionID:    s.ID(),
		Stage:        ctl.Stage().Name,
		Instructions: ctl.Instructions(),
		At:           time.Now(),
	}
	if err := writeEvent(ctx, conn, hello); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if err := writeEvent(ctx, conn, m); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, m Message) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, m)
}

// ─── Archive ─────────────────────────────────────────────────────────────────

func (a *API) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusNotFound, errors.New("archive disabled"))
		return
	}
	opts := archive.ListOptions{Role: r.URL.Query().Get("role")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		opts.Limit = n
	}
	recs, err := a.store.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) handleArchiveGet(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusNotFound, errors.New("archive disabled"))
		return
	}
	rec, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no archived interview %q", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// session resolves the {id} path value, writing 404 when it is unknown.
func (a *API) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.PathValue("id")
	s, ok := a.reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrSessionNotFound, id))
	}
	return s, ok
}

// decodeBody decodes the JSON request body into v. An empty body leaves v
// untouched. On failure it writes 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

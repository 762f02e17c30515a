package playground

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/KamdynS/agent-playground/agent/core"
	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/memory"
	httpserver "github.com/KamdynS/agent-playground/server/http"
)

const maxBodyBytes = 1 << 20

// AgentInfo describes an agent to playground clients
type AgentInfo struct {
	AgentID       string       `json:"agent_id"`
	Name          string       `json:"name"`
	Role          string       `json:"role,omitempty"`
	Description   string       `json:"description,omitempty"`
	Model         llm.ModelRef `json:"model"`
	Tools         []string     `json:"tools"`
	Instructions  []string     `json:"instructions,omitempty"`
	Markdown      bool         `json:"markdown"`
	ShowToolCalls bool         `json:"show_tool_calls"`
	Storage       bool         `json:"storage"`
}

func describe(a core.Agent) AgentInfo {
	cfg := a.Config()
	toolNames := []string{}
	for _, kit := range cfg.Tools {
		for _, t := range kit.Tools() {
			toolNames = append(toolNames, t.Name())
		}
	}
	return AgentInfo{
		AgentID:       cfg.ID,
		Name:          cfg.Name,
		Role:          cfg.Role,
		Description:   cfg.Description,
		Model:         cfg.Model,
		Tools:         toolNames,
		Instructions:  cfg.Instructions,
		Markdown:      cfg.Display.Markdown,
		ShowToolCalls: cfg.Display.ShowToolCalls,
		Storage:       a.Sessions() != nil,
	}
}

// SessionSummary is a session without its messages
type SessionSummary struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	UserID      string `json:"user_id,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

type runRequest struct {
	Message   string `json:"message"`
	AgentID   string `json:"agent_id"`
	Stream    bool   `json:"stream"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type sessionRequest struct {
	AgentID   string `json:"agent_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// parseRunRequest accepts JSON or form-encoded (including multipart) bodies
func parseRunRequest(w http.ResponseWriter, r *http.Request) (runRequest, error) {
	var req runRequest
	if isJSON(r) {
		return req, decodeJSON(w, r, &req)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, fmt.Errorf("invalid form: %w", err)
	}
	req.Message = r.FormValue("message")
	req.AgentID = r.FormValue("agent_id")
	req.SessionID = r.FormValue("session_id")
	req.UserID = r.FormValue("user_id")
	if s := r.FormValue("stream"); s != "" {
		stream, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("invalid stream value %q", s)
		}
		req.Stream = stream
	}
	return req, nil
}

func (p *Playground) status(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"playground": "available"})
}

func (p *Playground) getAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]AgentInfo, len(p.agents))
	for i, a := range p.agents {
		out[i] = describe(a)
	}
	httpserver.WriteJSON(w, http.StatusOK, out)
}

func (p *Playground) runAgent(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(w, r)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, ok := p.agent(req.AgentID)
	if !ok {
		httpserver.WriteError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", req.AgentID))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httpserver.WriteError(w, http.StatusBadRequest, core.ErrEmptyMessage.Error())
		return
	}

	input := core.RunInput{Message: req.Message, SessionID: req.SessionID, UserID: req.UserID}
	if req.Stream {
		p.streamRun(w, r, a, input)
		return
	}

	resp, err := a.Run(r.Context(), input)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("agent", a.Config().Name).Msg("agent run failed")
		httpserver.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (p *Playground) streamRun(w http.ResponseWriter, r *http.Request, a core.Agent, input core.RunInput) {
	ew, err := httpserver.NewEventWriter(w)
	if err != nil {
		httpserver.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := make(chan core.Event)
	errc := make(chan error, 1)
	go func() { errc <- a.RunStream(r.Context(), input, events) }()

	for ev := range events {
		if err := ew.Send(string(ev.Type), ev); err != nil {
			// client went away; drain so RunStream can finish
			for range events {
			}
			break
		}
	}
	if err := <-errc; err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("agent", a.Config().Name).Msg("agent stream failed")
		_ = ew.Send(string(core.EventRunError), httpserver.ErrorResponse{Error: err.Error()})
	}
}

// sessionAgent resolves the agent of a session request and its store
func (p *Playground) sessionAgent(w http.ResponseWriter, agentID string) (core.Agent, memory.SessionStore, bool) {
	a, ok := p.agent(agentID)
	if !ok {
		httpserver.WriteError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", agentID))
		return nil, nil, false
	}
	store := a.Sessions()
	if store == nil {
		httpserver.WriteError(w, http.StatusNotFound, fmt.Sprintf("agent %q does not have storage enabled", agentID))
		return nil, nil, false
	}
	return a, store, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrSessionNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	httpserver.WriteError(w, http.StatusInternalServerError, err.Error())
}

// ownedSession loads a session. With a user id, a session belonging to
// someone else is reported as not found.
func ownedSession(r *http.Request, store memory.SessionStore, agentID, sessionID, userID string) (*memory.Session, error) {
	sess, err := store.Get(r.Context(), agentID, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && sess.UserID != userID {
		return nil, memory.ErrSessionNotFound
	}
	return sess, nil
}

func (p *Playground) listSessions(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, store, ok := p.sessionAgent(w, req.AgentID)
	if !ok {
		return
	}
	sessions, err := store.List(r.Context(), a.Config().ID, req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = SessionSummary{
			SessionID:   s.ID,
			SessionName: s.Name,
			UserID:      s.UserID,
			CreatedAt:   s.CreatedAt.Unix(),
			UpdatedAt:   s.UpdatedAt.Unix(),
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, out)
}

func (p *Playground) getSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, store, ok := p.sessionAgent(w, req.AgentID)
	if !ok {
		return
	}
	sess, err := ownedSession(r, store, a.Config().ID, chi.URLParam(r, "session_id"), req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, sess)
}

func (p *Playground) renameSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Name) == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "session_id and name are required")
		return
	}
	a, store, ok := p.sessionAgent(w, req.AgentID)
	if !ok {
		return
	}
	if _, err := ownedSession(r, store, a.Config().ID, req.SessionID, req.UserID); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := store.Rename(r.Context(), a.Config().ID, req.SessionID, strings.TrimSpace(req.Name)); err != nil {
		writeStoreError(w, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"message": "successfully renamed session " + req.SessionID})
}

func (p *Playground) deleteSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		httpserver.WriteError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	a, store, ok := p.sessionAgent(w, req.AgentID)
	if !ok {
		return
	}
	if _, err := ownedSession(r, store, a.Config().ID, req.SessionID, req.UserID); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := store.Delete(r.Context(), a.Config().ID, req.SessionID); err != nil {
		writeStoreError(w, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"message": "successfully deleted session " + req.SessionID})
}

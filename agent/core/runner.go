package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/KamdynS/agent-playground/llm"
	"github.com/KamdynS/agent-playground/memory"
	obs "github.com/KamdynS/agent-playground/observability"
	"github.com/KamdynS/agent-playground/tools"
)

// maxParallelTools caps concurrent tool executions within one model turn
const maxParallelTools = 4

// ErrEmptyMessage is returned for a run without user input
var ErrEmptyMessage = errors.New("message is required")

// ChatAgent is the default implementation of the Agent interface
type ChatAgent struct {
	model      llm.Client
	tools      *tools.DefaultRegistry
	toolDefs   []llm.Tool
	sessions   memory.SessionStore
	middleware []Middleware
	config     Config
	now        func() time.Time
}

// ChatConfig holds configuration for ChatAgent
type ChatConfig struct {
	Model      llm.Client
	Sessions   memory.SessionStore
	Middleware []Middleware
	Config     Config
}

// NewChatAgent creates a ChatAgent. It does not contact the model, so an
// agent whose credentials are missing still constructs; the error surfaces
// on the first run. Two toolkits exposing the same tool name are rejected.
func NewChatAgent(config ChatConfig) (*ChatAgent, error) {
	cfg := config.Config
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.HistoryMessages == 0 {
		cfg.HistoryMessages = DefaultHistoryMessages
	}

	registry := tools.NewRegistry()
	for _, kit := range cfg.Tools {
		if err := registry.RegisterToolkit(kit); err != nil {
			return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
		}
	}
	var defs []llm.Tool
	for _, t := range registry.Tools() {
		defs = append(defs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}

	return &ChatAgent{
		model:      config.Model,
		tools:      registry,
		toolDefs:   defs,
		sessions:   config.Sessions,
		middleware: config.Middleware,
		config:     cfg,
		now:        time.Now,
	}, nil
}

// Config implements the Agent interface
func (a *ChatAgent) Config() Config { return a.config }

// Sessions implements the Agent interface
func (a *ChatAgent) Sessions() memory.SessionStore { return a.sessions }

// ToolNames lists the agent's tools in registration order
func (a *ChatAgent) ToolNames() []string { return a.tools.List() }

type emitFunc func(Event)

// runState is the bookkeeping of a single run
type runState struct {
	id       string
	session  *memory.Session
	messages []llm.Message
	records  []ToolCallRecord
	usage    *llm.Usage
}

func (a *ChatAgent) event(rs *runState, typ EventType) Event {
	return Event{
		Type:      typ,
		RunID:     rs.id,
		AgentID:   a.config.ID,
		SessionID: rs.session.ID,
		CreatedAt: a.now().Unix(),
	}
}

// Run implements the Agent interface
func (a *ChatAgent) Run(ctx context.Context, input RunInput) (*RunResponse, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	span, ctx := obs.TracerImpl.StartSpan(ctx, "agent.run")
	defer span.End()

	resp, err := a.run(ctx, span, input, nil)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return nil, err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return resp, nil
}

// RunStream implements the Agent interface. An agent without tools streams
// model deltas as they arrive; otherwise tool events are emitted as tools run
// and the answer follows as one RunResponse event.
func (a *ChatAgent) RunStream(ctx context.Context, input RunInput, output chan<- Event) error {
	defer close(output)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	span, ctx := obs.TracerImpl.StartSpan(ctx, "agent.run_stream")
	defer span.End()

	emit := func(ev Event) {
		select {
		case output <- ev:
		case <-ctx.Done():
		}
	}

	_, err := a.run(ctx, span, input, emit)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return ctx.Err()
}

func (a *ChatAgent) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.Timeout > 0 {
		return context.WithTimeout(ctx, a.config.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *ChatAgent) run(ctx context.Context, span obs.Span, input RunInput, emit emitFunc) (*RunResponse, error) {
	start := a.now()
	labels := map[string]string{"agent": a.config.Name}
	obs.MetricsImpl.IncrementRequests(labels)
	defer func() { obs.MetricsImpl.RecordLatency(time.Since(start), labels) }()

	log := zerolog.Ctx(ctx).With().Str("agent", a.config.Name).Logger()
	span.SetAttribute(obs.AttrAgentName, a.config.Name)

	rs, err := a.prepare(ctx, input)
	if err != nil {
		obs.MetricsImpl.RecordError("agent_error", labels)
		return nil, err
	}
	span.SetAttribute(obs.AttrSessionID, rs.session.ID)
	log = log.With().Str("run_id", rs.id).Str("session_id", rs.session.ID).Logger()
	log.Debug().Msg("run started")
	if emit != nil {
		emit(a.event(rs, EventRunStarted))
	}

	var answer string
	if emit != nil && len(a.toolDefs) == 0 {
		answer, err = a.stream(ctx, rs, emit)
	} else {
		answer, err = a.loop(ctx, rs, emit)
	}
	if err != nil {
		obs.MetricsImpl.RecordError("agent_error", labels)
		log.Warn().Err(err).Msg("run failed")
		return nil, err
	}

	resp := &RunResponse{
		RunID:     rs.id,
		AgentID:   a.config.ID,
		SessionID: rs.session.ID,
		Content:   answer,
		Model:     a.model.Model(),
		Usage:     rs.usage,
		CreatedAt: a.now().Unix(),
	}
	if a.config.Display.ShowToolCalls {
		resp.ToolCalls = rs.records
		resp.Content = withToolCalls(answer, rs.records)
	}

	if err := a.save(ctx, rs, input, answer); err != nil {
		obs.MetricsImpl.RecordError("session_error", labels)
		return nil, err
	}
	for _, mw := range a.middleware {
		if err := mw.AfterRun(ctx, resp); err != nil {
			return nil, err
		}
	}

	if emit != nil {
		if len(a.toolDefs) > 0 {
			ev := a.event(rs, EventRunResponse)
			ev.Content = resp.Content
			emit(ev)
		}
		ev := a.event(rs, EventRunCompleted)
		ev.Response = resp
		emit(ev)
	}
	log.Debug().Int("tool_calls", len(rs.records)).Dur("duration", time.Since(start)).Msg("run completed")
	return resp, nil
}

// prepare resolves the session and builds the message list sent to the model
func (a *ChatAgent) prepare(ctx context.Context, input RunInput) (*runState, error) {
	text := strings.TrimSpace(input.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	rs := &runState{id: uuid.NewString()}
	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	rs.session = &memory.Session{ID: sessionID, AgentID: a.config.ID, UserID: input.UserID}

	if a.sessions != nil && input.SessionID != "" {
		sess, err := a.sessions.Get(ctx, a.config.ID, sessionID)
		switch {
		case err == nil:
			rs.session = sess
		case errors.Is(err, memory.ErrSessionNotFound):
		default:
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
	}
	if rs.session.Name == "" {
		rs.session.Name = memory.NameFrom(text)
	}

	rs.messages = append(rs.messages, llm.Message{Role: "system", Content: a.config.SystemPrompt()})
	rs.messages = append(rs.messages, a.history(rs.session)...)
	rs.messages = append(rs.messages, llm.Message{Role: "user", Content: text})
	return rs, nil
}

// history returns the replayed tail of the session, starting at a user turn
func (a *ChatAgent) history(sess *memory.Session) []llm.Message {
	n := a.config.HistoryMessages
	if n < 0 || len(sess.Messages) == 0 {
		return nil
	}
	msgs := sess.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	for len(msgs) > 0 && msgs[0].Role != "user" {
		msgs = msgs[1:]
	}
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func (a *ChatAgent) save(ctx context.Context, rs *runState, input RunInput, answer string) error {
	if a.sessions == nil {
		return nil
	}
	now := a.now().Unix()
	rs.session.Messages = append(rs.session.Messages,
		memory.Message{Message: llm.Message{Role: "user", Content: strings.TrimSpace(input.Message)}, CreatedAt: now},
		memory.Message{Message: llm.Message{Role: "assistant", Content: answer}, CreatedAt: now},
	)
	if rs.session.UserID == "" {
		rs.session.UserID = input.UserID
	}
	if err := a.sessions.Upsert(ctx, rs.session); err != nil {
		return fmt.Errorf("save session %s: %w", rs.session.ID, err)
	}
	return nil
}

func (a *ChatAgent) chat(ctx context.Context, rs *runState, req *llm.ChatRequest) (*llm.Response, error) {
	for _, mw := range a.middleware {
		if err := mw.BeforeLLMCall(ctx, req); err != nil {
			return nil, err
		}
	}
	resp, err := a.model.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	for _, mw := range a.middleware {
		if err := mw.AfterLLMResponse(ctx, resp); err != nil {
			return nil, err
		}
	}
	rs.addUsage(resp.Usage)
	return resp, nil
}

func (rs *runState) addUsage(u *llm.Usage) {
	if u == nil {
		return
	}
	if rs.usage == nil {
		rs.usage = &llm.Usage{}
	}
	rs.usage.InputTokens += u.InputTokens
	rs.usage.OutputTokens += u.OutputTokens
	rs.usage.TotalTokens += u.TotalTokens
	rs.usage.Cost += u.Cost
}

// loop runs model turns, executing requested tools, until the model answers
func (a *ChatAgent) loop(ctx context.Context, rs *runState, emit emitFunc) (string, error) {
	for iter := 0; iter < a.config.MaxIterations; iter++ {
		resp, err := a.chat(ctx, rs, &llm.ChatRequest{Messages: rs.messages, Tools: a.toolDefs})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		rs.messages = append(rs.messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		records := a.executeTools(ctx, rs, resp.ToolCalls, emit)
		for _, rec := range records {
			rs.messages = append(rs.messages, llm.Message{
				Role:       "tool",
				Name:       rec.Name,
				Content:    rec.modelContent(),
				ToolCallID: rec.ID,
			})
		}
		rs.records = append(rs.records, records...)
	}
	return "", fmt.Errorf("agent %s: no answer after %d iterations", a.config.Name, a.config.MaxIterations)
}

// executeTools runs calls concurrently. Results keep the order of calls.
func (a *ChatAgent) executeTools(ctx context.Context, rs *runState, calls []llm.ToolCall, emit emitFunc) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))
	p := pool.New().WithMaxGoroutines(maxParallelTools)
	for i, call := range calls {
		i, call := i, call
		p.Go(func() {
			records[i] = a.executeTool(ctx, rs, call, emit)
		})
	}
	p.Wait()
	return records
}

func (a *ChatAgent) executeTool(ctx context.Context, rs *runState, call llm.ToolCall, emit emitFunc) ToolCallRecord {
	rec := ToolCallRecord{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}
	if emit != nil {
		ev := a.event(rs, EventToolCallStarted)
		started := rec
		ev.Tool = &started
		emit(ev)
	}

	start := time.Now()
	var (
		result string
		err    error
	)
	for _, mw := range a.middleware {
		if err = mw.BeforeToolExecute(ctx, rec.Name, rec.Arguments); err != nil {
			break
		}
	}
	if err == nil {
		// registry reports unknown tools as errors
		result, err = a.tools.Execute(ctx, rec.Name, rec.Arguments)
	}
	for _, mw := range a.middleware {
		if mwErr := mw.AfterToolExecute(ctx, rec.Name, result, err); mwErr != nil && err == nil {
			err = mwErr
		}
	}
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Error = err.Error()
		zerolog.Ctx(ctx).Debug().Err(err).Str("tool", rec.Name).Msg("tool failed")
	} else {
		rec.Result = result
	}

	if emit != nil {
		ev := a.event(rs, EventToolCallCompleted)
		done := rec
		ev.Tool = &done
		emit(ev)
	}
	return rec
}

// stream forwards model deltas as RunResponse events
func (a *ChatAgent) stream(ctx context.Context, rs *runState, emit emitFunc) (string, error) {
	req := &llm.ChatRequest{Messages: rs.messages}
	for _, mw := range a.middleware {
		if err := mw.BeforeLLMCall(ctx, req); err != nil {
			return "", err
		}
	}

	chunks := make(chan *llm.Response)
	errc := make(chan error, 1)
	go func() { errc <- a.model.Stream(ctx, req, chunks) }()

	var b strings.Builder
	for chunk := range chunks {
		rs.addUsage(chunk.Usage)
		if chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		ev := a.event(rs, EventRunResponse)
		ev.Content = chunk.Content
		emit(ev)
	}
	if err := <-errc; err != nil {
		return "", fmt.Errorf("model stream failed: %w", err)
	}

	final := &llm.Response{Content: b.String(), Model: a.model.Model(), Provider: a.model.Provider()}
	for _, mw := range a.middleware {
		if err := mw.AfterLLMResponse(ctx, final); err != nil {
			return "", err
		}
	}
	return final.Content, nil
}

var _ Agent = (*ChatAgent)(nil)

package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tracer defines the interface for distributed tracing
type Tracer interface {
	// StartSpan creates a new span with the given name
	StartSpan(ctx context.Context, name string) (Span, context.Context)

	// SpanFromContext extracts the span from context
	SpanFromContext(ctx context.Context) Span
}

// Span represents a tracing span
type Span interface {
	// SetAttribute sets an attribute on the span
	SetAttribute(key string, value any)

	// SetStatus sets the span status
	SetStatus(code StatusCode, message string)

	// AddEvent adds an event to the span
	AddEvent(name string, attributes map[string]any)

	// End finishes the span
	End()
}

// StatusCode represents span status codes
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

func (c StatusCode) String() string {
	switch c {
	case StatusCodeOk:
		return "ok"
	case StatusCodeError:
		return "error"
	default:
		return "unset"
	}
}

// Common attribute keys (align loosely with OTel HTTP and GenAI conventions)
const (
	AttrHTTPMethod   = "http.method"
	AttrHTTPRoute    = "http.route"
	AttrHTTPStatus   = "http.status_code"
	AttrRequestID    = "request.id"
	AttrProvider     = "genai.provider"
	AttrModel        = "genai.model"
	AttrFinishReason = "genai.finish_reason"
	AttrToolName     = "genai.tool.name"
	AttrTokensInput  = "genai.tokens.input"
	AttrTokensOutput = "genai.tokens.output"
	AttrAgentName    = "agent.name"
	AttrSessionID    = "agent.session_id"
)

// Global, swappable implementations (no-ops by default)
var (
	TracerImpl  Tracer  = &NoOpTracer{}
	MetricsImpl Metrics = &NoOpMetrics{}
)

// SetTracer swaps the global tracer implementation
func SetTracer(t Tracer) { TracerImpl = t }

// SetMetrics swaps the global metrics implementation
func SetMetrics(m Metrics) { MetricsImpl = m }

// NoOpTracer is a no-operation implementation of Tracer
type NoOpTracer struct{}

// StartSpan implements Tracer interface
func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return &NoOpSpan{}, ctx
}

// SpanFromContext implements Tracer interface
func (t *NoOpTracer) SpanFromContext(ctx context.Context) Span {
	return &NoOpSpan{}
}

// NoOpSpan is a no-operation implementation of Span
type NoOpSpan struct{}

func (s *NoOpSpan) SetAttribute(key string, value any)              {}
func (s *NoOpSpan) SetStatus(code StatusCode, message string)       {}
func (s *NoOpSpan) AddEvent(name string, attributes map[string]any) {}
func (s *NoOpSpan) End()                                            {}

type spanKey struct{}

// LogTracer writes every finished span to a zerolog logger at debug level.
type LogTracer struct {
	logger zerolog.Logger
}

// NewLogTracer creates a tracer that logs to logger
func NewLogTracer(logger zerolog.Logger) *LogTracer {
	return &LogTracer{logger: logger}
}

// StartSpan implements Tracer interface
func (t *LogTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	span := &LogSpan{
		logger:     t.logger,
		name:       name,
		start:      time.Now(),
		attributes: make(map[string]any),
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		span.attributes[AttrRequestID] = id
	}
	if parent, ok := ctx.Value(spanKey{}).(*LogSpan); ok {
		span.parent = parent.name
	}
	return span, context.WithValue(ctx, spanKey{}, span)
}

// SpanFromContext implements Tracer interface
func (t *LogTracer) SpanFromContext(ctx context.Context) Span {
	if span, ok := ctx.Value(spanKey{}).(*LogSpan); ok {
		return span
	}
	return &NoOpSpan{}
}

// LogSpan is a span that is emitted as a single log event on End.
type LogSpan struct {
	logger zerolog.Logger
	name   string
	parent string
	start  time.Time

	mu         sync.Mutex
	status     StatusCode
	message    string
	attributes map[string]any
	events     []string
	ended      bool
}

// SetAttribute implements Span interface
func (s *LogSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.attributes[key] = value
	}
}

// SetStatus implements Span interface
func (s *LogSpan) SetStatus(code StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.status = code
		s.message = message
	}
}

// AddEvent implements Span interface
func (s *LogSpan) AddEvent(name string, attributes map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.events = append(s.events, name)
	}
}

// End implements Span interface
func (s *LogSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	ev := s.logger.Debug()
	if s.status == StatusCodeError {
		ev = s.logger.Warn()
	}
	ev = ev.Str("span", s.name).
		Dur("duration", time.Since(s.start)).
		Str("status", s.status.String()).
		Fields(s.attributes)
	if s.parent != "" {
		ev = ev.Str("parent", s.parent)
	}
	if len(s.events) > 0 {
		ev = ev.Strs("events", s.events)
	}
	if s.message != "" {
		ev = ev.Str("status_message", s.message)
	}
	ev.Msg("span finished")
}

var (
	_ Tracer = (*NoOpTracer)(nil)
	_ Tracer = (*LogTracer)(nil)
	_ Span   = (*NoOpSpan)(nil)
	_ Span   = (*LogSpan)(nil)
)

// ----- HTTP request id propagation -----

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// GenerateRequestID returns a random request id
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID stores a request id in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext retrieves a request id from context
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// ExtractHTTPContext stores the incoming request id, or a fresh one, in ctx
func ExtractHTTPContext(ctx context.Context, r *http.Request) context.Context {
	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		id = GenerateRequestID()
	}
	return WithRequestID(ctx, id)
}

// InjectHTTPHeaders writes propagation headers to the response
func InjectHTTPHeaders(w http.ResponseWriter, ctx context.Context) {
	if id, ok := RequestIDFromContext(ctx); ok {
		w.Header().Set(HeaderRequestID, id)
	}
}

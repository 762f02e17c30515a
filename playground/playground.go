// Package playground assembles agents into an HTTP application.
package playground

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/KamdynS/agent-playground/agent/core"
	obs "github.com/KamdynS/agent-playground/observability"
	httpserver "github.com/KamdynS/agent-playground/server/http"
)

// Prefix is the mount point of the playground API
const Prefix = "/v1/playground"

// ErrNoAgents is returned when a playground is built without agents
var ErrNoAgents = errors.New("playground needs at least one agent")

// Option configures a Playground
type Option func(*Playground)

// WithAPIKey requires key as X-API-Key or a Bearer token on API routes
func WithAPIKey(key string) Option {
	return func(p *Playground) { p.apiKey = key }
}

// WithMetrics serves h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(p *Playground) { p.metrics = h }
}

// WithAllowedOrigins restricts CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(p *Playground) { p.origins = origins }
}

// Playground serves a fixed, ordered set of agents
type Playground struct {
	agents  []core.Agent
	byID    map[string]core.Agent
	apiKey  string
	metrics http.Handler
	origins []string
	handler http.Handler
}

// New assembles agents in the given order. Agent names and ids must be
// unique.
func New(agents []core.Agent, opts ...Option) (*Playground, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	p := &Playground{
		agents:  append([]core.Agent(nil), agents...),
		byID:    make(map[string]core.Agent, len(agents)),
		origins: []string{"*"},
	}
	names := make(map[string]bool, len(agents))
	for i, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("agent %d is nil", i)
		}
		cfg := a.Config()
		if names[cfg.Name] {
			return nil, fmt.Errorf("duplicate agent name %q", cfg.Name)
		}
		if _, dup := p.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", cfg.ID)
		}
		names[cfg.Name] = true
		p.byID[cfg.ID] = a
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handler = p.routes()
	obs.MetricsImpl.SetActiveAgents(len(p.agents))
	return p, nil
}

// Agents returns the agents in order
func (p *Playground) Agents() []core.Agent {
	return append([]core.Agent(nil), p.agents...)
}

// Handler returns the servable application
func (p *Playground) Handler() http.Handler { return p.handler }

// agent finds an agent by id, then by name
func (p *Playground) agent(idOrName string) (core.Agent, bool) {
	if a, ok := p.byID[idOrName]; ok {
		return a, true
	}
	for _, a := range p.agents {
		if a.Config().Name == idOrName {
			return a, true
		}
	}
	return nil, false
}

func (p *Playground) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if p.metrics != nil {
		r.Handle("/metrics", p.metrics)
	}

	r.Route(Prefix, func(r chi.Router) {
		r.Get("/status", p.status)
		r.Group(func(r chi.Router) {
			r.Use(p.requireAPIKey)
			r.Get("/agent/get", p.getAgents)
			r.Post("/agent/run", p.runAgent)
			r.Post("/agent/sessions/all", p.listSessions)
			r.Post("/agent/sessions/{session_id}", p.getSession)
			r.Post("/agent/session/rename", p.renameSession)
			r.Post("/agent/session/delete", p.deleteSession)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpserver.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpserver.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return cors.New(cors.Options{
		AllowedOrigins: p.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

func (p *Playground) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if key != p.apiKey {
			httpserver.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

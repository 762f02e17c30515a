// Command playground serves the web search and finance agents over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/rs/zerolog"

	"github.com/KamdynS/agent-playground/agent/preset"
	"github.com/KamdynS/agent-playground/config"
	"github.com/KamdynS/agent-playground/memory"
	obs "github.com/KamdynS/agent-playground/observability"
	"github.com/KamdynS/agent-playground/observability/prom"
	"github.com/KamdynS/agent-playground/playground"
	httpserver "github.com/KamdynS/agent-playground/server/http"
)

var (
	app = kingpin.New("playground", "Serve AI agents in a web playground")

	host       = app.Flag("host", "Address to bind to (overrides PLAYGROUND_HOST)").String()
	port       = app.Flag("port", "Port to bind to (overrides PLAYGROUND_PORT)").Int()
	reload     = app.Flag("reload", "Rebuild agents when the env or agents file changes").Default("true").Bool()
	agentsFile = app.Flag("agents-file", "YAML file defining the agents (default: built-in agents)").String()
	envFile    = app.Flag("env-file", "Dotenv file to load").Default(".env").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "playground: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	protected := config.SnapshotEnv()
	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	logger := settings.Logger(os.Stderr)
	zerolog.DefaultContextLogger = &logger
	obs.SetTracer(obs.NewLogTracer(logger))
	exporter := prom.New()
	obs.SetMetrics(exporter)

	sessions, closeSessions, err := settings.SessionStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSessions(); err != nil {
			logger.Warn().Err(err).Msg("closing session store")
		}
	}()
	logger.Info().Str("storage", settings.Storage).Msg("session store ready")

	first := true
	build := func(ctx context.Context) (*playground.Playground, error) {
		current := settings
		if !first {
			// pick up edited credentials and API key
			if err := config.ReloadDotEnv(protected, *envFile); err != nil {
				return nil, err
			}
			reloaded, err := loadSettings()
			if err != nil {
				return nil, err
			}
			current = reloaded
		}
		first = false
		return buildPlayground(current, sessions, exporter)
	}

	watch := []string{*envFile}
	if settings.AgentsFile != "" {
		watch = append(watch, settings.AgentsFile)
	}
	return playground.Serve(ctx, build, playground.ServeOptions{
		Server: httpserver.Config{
			Host:         settings.Host,
			Port:         settings.Port,
			ReadTimeout:  settings.ReadTimeout,
			WriteTimeout: settings.WriteTimeout,
		},
		Reload:     settings.Reload,
		WatchPaths: watch,
		Logger:     logger,
	})
}

// loadSettings reads the environment and applies command line overrides
func loadSettings() (*config.Settings, error) {
	s, err := config.Load()
	if err != nil {
		return nil, err
	}
	if *host != "" {
		s.Host = *host
	}
	if *port != 0 {
		s.Port = *port
	}
	if *agentsFile != "" {
		s.AgentsFile = *agentsFile
	}
	s.Reload = s.Reload && *reload
	return s, s.Validate()
}

func buildPlayground(s *config.Settings, sessions memory.SessionStore, exporter *prom.Exporter) (*playground.Playground, error) {
	defs := preset.Defaults()
	if s.AgentsFile != "" {
		loaded, err := preset.LoadFile(s.AgentsFile)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}
	agents, err := preset.Build(defs, preset.Deps{
		Credentials: s.Credentials(),
		Sessions:    sessions,
		Middleware:  s.Middleware(),
	})
	if err != nil {
		return nil, err
	}
	return playground.New(agents,
		playground.WithAPIKey(s.APIKey),
		playground.WithMetrics(prom.Handler(exporter)),
	)
}

package playground

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/KamdynS/agent-playground/reload"
	httpserver "github.com/KamdynS/agent-playground/server/http"
)

// BuildFunc constructs the application. Serve calls it once at startup and
// again on every reload.
type BuildFunc func(ctx context.Context) (*Playground, error)

// ServeOptions configures Serve
type ServeOptions struct {
	Server httpserver.Config

	// Reload rebuilds the application when a file in WatchPaths changes
	Reload     bool
	WatchPaths []string
	Debounce   time.Duration

	// Listener, when set, is served instead of listening on Server's address
	Listener net.Listener

	Logger zerolog.Logger
}

// Serve builds the playground and serves it until ctx is cancelled. With
// Reload set, a rebuild replaces the live handler without closing the
// listener; a failed rebuild keeps the previous application.
func Serve(ctx context.Context, build BuildFunc, opts ServeOptions) error {
	pg, err := build(ctx)
	if err != nil {
		return fmt.Errorf("build playground: %w", err)
	}
	opts.Server.Logger = opts.Logger
	srv := httpserver.NewServer(pg.Handler(), opts.Server)

	if opts.Reload && len(opts.WatchPaths) > 0 {
		watchOpts := []reload.Option{reload.WithLogger(opts.Logger)}
		if opts.Debounce > 0 {
			watchOpts = append(watchOpts, reload.WithDebounce(opts.Debounce))
		}
		w, err := reload.NewWatcher(opts.WatchPaths, watchOpts...)
		if err != nil {
			return err
		}
		defer w.Close()

		go func() {
			_ = w.Run(ctx, func(path string) {
				next, err := build(ctx)
				if err != nil {
					opts.Logger.Error().Err(err).Str("path", path).Msg("reload failed, keeping previous application")
					return
				}
				srv.SetHandler(next.Handler())
				opts.Logger.Info().Str("path", path).Int("agents", len(next.Agents())).Msg("application reloaded")
			})
		}()
		opts.Logger.Info().Strs("paths", opts.WatchPaths).Msg("reload enabled")
	}

	opts.Logger.Info().Int("agents", len(pg.Agents())).Str("url", "http://"+srv.Addr()+Prefix).Msg("serving playground")
	if opts.Listener != nil {
		return srv.Serve(ctx, opts.Listener)
	}
	return srv.ListenAndServe(ctx)
}

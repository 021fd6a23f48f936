package cli

import (
	"context"
	"log/slog"

	"github.com/rbruinekool/singularity/internal/config"
	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/engine"
	"github.com/rbruinekool/singularity/internal/store"
)

// session holds what a one-shot command needs to act on the rundown the
// same way the server does: committed writes become events, and state
// changes reach the renderer when one is configured.
type session struct {
	cfg        config.Config
	store      *store.Store
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher // nil without remote.baseURL
}

func openSession(opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)

	eng := engine.New()
	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithPublisher(eng))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	s := &session{cfg: cfg, store: st, engine: eng}
	s.dispatcher = newDispatcher(cfg, st)
	if s.dispatcher != nil {
		s.dispatcher.Register(eng)
	}
	return s, nil
}

// newDispatcher builds the dispatcher for cfg, or returns nil when no
// renderer is configured.
func newDispatcher(cfg config.Config, st dispatch.Store, extra ...dispatch.Option) *dispatch.Dispatcher {
	if cfg.Remote.BaseURL == "" {
		return nil
	}
	opts := []dispatch.Option{
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithOffAirPayload(cfg.Dispatch.OffAirPayload),
	}
	opts = append(opts, extra...)
	return dispatch.New(st, dispatch.NewClient(cfg.Remote.BaseURL, nil), opts...)
}

// settle delivers queued events and waits for the dispatches they started.
func (s *session) settle(ctx context.Context) {
	s.engine.Drain(ctx)
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

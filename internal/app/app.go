// Package app wires all DermaLive subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP control plane until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithLiveProvider, WithDevice, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dermalive/dermalive/internal/config"
	"github.com/dermalive/dermalive/internal/health"
	"github.com/dermalive/dermalive/internal/observe"
	"github.com/dermalive/dermalive/internal/recap"
	"github.com/dermalive/dermalive/internal/voice"
	"github.com/dermalive/dermalive/pkg/audio"
	"github.com/dermalive/dermalive/pkg/audio/playback"
	"github.com/dermalive/dermalive/pkg/capture"
	"github.com/dermalive/dermalive/pkg/conversation"
	"github.com/dermalive/dermalive/pkg/conversation/postgres"
	"github.com/dermalive/dermalive/pkg/provider/live"
	"github.com/dermalive/dermalive/pkg/provider/live/gemini"
)

// shutdownTimeout bounds the HTTP server drain during Run teardown.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and serves the DermaLive control plane.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store    conversation.Store
	provider live.Provider
	device   capture.Device
	sink     playback.Sink
	recapLLM recap.Completer

	pipeline *capture.Pipeline
	sched    *playback.Scheduler
	manager  *voice.Manager
	recaps   *recap.Generator
	health   *health.Handler
	srv      *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithStore injects a conversation store instead of creating one from config.
func WithStore(s conversation.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLiveProvider injects a live provider instead of creating one from config.
func WithLiveProvider(p live.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithDevice injects a capture device. Without one the app runs headless:
// sessions open but no audio flows until a platform adapter is wired.
func WithDevice(d capture.Device) Option {
	return func(a *App) { a.device = d }
}

// WithPlaybackSink injects a playback sink. Defaults to a discarding sink.
func WithPlaybackSink(s playback.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithRecapCompleter injects the recap LLM instead of creating one from config.
func WithRecapCompleter(c recap.Completer) Option {
	return func(a *App) { a.recapLLM = c }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initProvider()
	a.initPipeline()
	if err := a.initRecap(); err != nil {
		return nil, fmt.Errorf("app: init recap: %w", err)
	}
	a.initHTTP()

	return a, nil
}

// initStore creates the conversation store: PostgreSQL when a DSN is
// configured, in-memory otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Conversation.PostgresDSN
	if dsn == "" {
		a.logger.Warn("no postgres_dsn configured; conversation log is in-memory only")
		a.store = conversation.NewMemStore()
		return nil
	}

	store, err := postgres.New(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initProvider creates the live voice provider from config.
func (a *App) initProvider() {
	if a.provider != nil {
		return
	}

	var opts []gemini.Option
	if a.cfg.Live.Model != "" {
		opts = append(opts, gemini.WithModel(a.cfg.Live.Model))
	}
	if a.cfg.Live.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(a.cfg.Live.BaseURL))
	}
	a.provider = gemini.New(a.cfg.Live.APIKey, opts...)
}

// initPipeline builds the capture pipeline, the playback scheduler, and the
// session manager on top of them.
func (a *App) initPipeline() {
	if a.device == nil {
		a.device = nullDevice{}
	}
	if a.sink == nil {
		a.sink = discardSink()
	}

	metrics := observe.DefaultMetrics()
	a.pipeline = capture.New(a.device, capture.WithFrameFunc(func(forwarded bool) {
		metrics.RecordFrame(context.Background(), forwarded)
	}))
	a.sched = playback.New(a.sink)
	a.closers = append(a.closers, a.sched.Close)

	a.manager = voice.NewManager(a.provider, a.pipeline, a.sched, a.store,
		voice.WithLogger(a.logger),
		voice.WithMetrics(metrics),
	)
}

// initRecap builds the recap generator when enabled.
func (a *App) initRecap() error {
	if !a.cfg.Recap.Enabled {
		return nil
	}

	if a.recapLLM == nil {
		p := a.cfg.Recap.Provider
		llm, err := recap.NewLLM(p.Name, p.Model, p.APIKey, p.BaseURL)
		if err != nil {
			return err
		}
		a.recapLLM = llm
	}
	a.recaps = recap.NewGenerator(a.recapLLM, a.store)
	return nil
}

// initHTTP assembles the health probes and the HTTP server.
func (a *App) initHTTP() {
	probes := []health.Probe{
		{Name: "conversation_store", Run: a.probeStore},
	}
	a.health = health.New(probes...)

	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// probeStore checks that the conversation store is reachable. Stores without
// a connection to probe (in-memory) always pass.
func (a *App) probeStore(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := a.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Run serves the control plane until ctx is cancelled, then drains in-flight
// requests and stops the live session.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", "addr", a.srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the live session and tears down all subsystems in order.
// It respects the context deadline: if ctx expires before all closers
// finish, the remaining ones are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		a.manager.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// nullDevice is the headless default microphone: opening succeeds and the
// stream stays silent until closed. Deployments with real audio wire a
// platform adapter through [WithDevice].
type nullDevice struct{}

func (nullDevice) Open(context.Context) (capture.Stream, error) {
	return &nullStream{frames: make(chan audio.Frame)}, nil
}

type nullStream struct {
	frames chan audio.Frame
	once   sync.Once
}

func (s *nullStream) Frames() <-chan audio.Frame { return s.frames }

func (s *nullStream) Close() error {
	s.once.Do(func() { close(s.frames) })
	return nil
}

// discardSink drops synthesised audio. Scheduling timing still runs, so
// transcripts and turn commits behave normally.
func discardSink() playback.Sink {
	return playback.SinkFunc(func(*audio.Buffer, time.Duration) func() {
		return func() {}
	})
}

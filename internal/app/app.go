// Package app wires all voxprep subsystems into a running client.
//
// The App struct owns the full lifecycle: New connects the interview channel
// and builds the audio pipelines and session engine, Run serves the local
// health and metrics endpoint until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithConn, WithRecorder, WithPlayer). When an option is not provided, New
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxprep/voxprep/internal/config"
	"github.com/voxprep/voxprep/internal/gateway"
	"github.com/voxprep/voxprep/internal/health"
	"github.com/voxprep/voxprep/internal/observe"
	"github.com/voxprep/voxprep/internal/session"
	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/audio/opusrec"
	"github.com/voxprep/voxprep/pkg/audio/pcmplay"
)

// App owns all subsystem lifetimes for one interview client.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	conn    gateway.Conn
	rec     audio.Recorder
	player  audio.Player
	engine  *session.Orchestrator
	metrics *observe.Metrics

	httpSrv *http.Server

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConn injects a channel instead of dialing the configured endpoint.
func WithConn(c gateway.Conn) Option {
	return func(a *App) { a.conn = c }
}

// WithRecorder injects a capture pipeline instead of the ffmpeg recorder.
func WithRecorder(r audio.Recorder) Option {
	return func(a *App) { a.rec = r }
}

// WithPlayer injects a playback pipeline instead of the ffplay player.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithLogger sets the application logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring the channel, audio pipelines, and session
// engine together. Dialing the interview server is the only network operation
// performed here; it is bounded by ctx.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.conn == nil {
		ch, err := gateway.Dial(ctx, cfg.Server.Endpoint, cfg.User.ID, gateway.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("app: dial interview server: %w", err)
		}
		a.conn = ch
	}
	if a.rec == nil {
		a.rec = opusrec.New(opusrec.WithSource(&opusrec.FFmpegSource{
			Binary: cfg.Audio.FFmpegBinary,
			Device: cfg.Audio.CaptureDevice,
		}))
	}
	if a.player == nil {
		a.player = pcmplay.New(pcmplay.WithSink(&pcmplay.FFplaySink{
			Binary: cfg.Audio.FFplayBinary,
		}))
	}

	a.engine = session.New(a.conn, a.rec, a.player, cfg.User.ID,
		session.WithAckTimeout(cfg.Session.AckTimeout),
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
	)

	mux := http.NewServeMux()
	health.New(health.ChannelChecker(a.conn)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Engine returns the session engine for collaborators (console, tests).
func (a *App) Engine() *session.Orchestrator { return a.engine }

// Handler returns the local HTTP handler (health, readiness, metrics).
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// Run serves the local HTTP endpoint until ctx is cancelled. It returns nil
// on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("local endpoint listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown tears the client down: the session engine first (which stops
// capture, playback, the timer, and the channel, in that order), then the
// local HTTP server. Idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close engine: %w", err))
		}
		if err := a.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("app: stop http server: %w", err))
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

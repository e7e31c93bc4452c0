// Package supervisor owns a worker child process end to end: spawning it,
// completing its handshake, running a router.Router against its
// connection, watching its health, and restarting it: with backoff when it
// crashes, at once when a reload is requested (spec.md §4.5).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/zapsplice/zap/health"
	"github.com/zapsplice/zap/router"
	"github.com/zapsplice/zap/watchdog"
	"github.com/zapsplice/zap/wire"
	"github.com/zapsplice/zap/workerrt"
)

const ProtocolVersion uint32 = 1

// Config describes how to launch and supervise one worker process.
type Config struct {
	WorkerPath string
	WorkerArgs []string
	ExtraEnv   []string
	SocketPath string

	HealthCheckInterval time.Duration
	IdleTimeout         time.Duration // 0 disables hang detection
	GoroutineLimit      int

	HandshakeTimeout time.Duration

	// MaxConcurrency is the router's global admission-control capacity
	// (spec.md §6's --max-concurrency, default 1024).
	MaxConcurrency int
	// DefaultDeadline is the router's default per-call deadline when a
	// caller doesn't supply one (spec.md §6's --timeout, default 30s).
	DefaultDeadline time.Duration
}

func (c *Config) setDefaults() {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 10 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1024
	}
	if c.DefaultDeadline <= 0 {
		c.DefaultDeadline = 30 * time.Second
	}
}

type options struct {
	logger   *slog.Logger
	notifier *watchdog.Notifier
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithWatchdog(n *watchdog.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Supervisor runs Config's worker, restarting it as needed, for as long as
// Run's context stays alive.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	notifier *watchdog.Notifier

	mu      sync.RWMutex
	state   WorkerState
	monitor *health.Monitor
	r       *router.Router

	reload chan struct{}
}

func New(cfg Config, opts ...Option) *Supervisor {
	cfg.setDefaults()
	o := &options{logger: slog.Default()}
	for _, fn := range opts {
		fn(o)
	}
	return &Supervisor{
		cfg:      cfg,
		logger:   o.logger,
		notifier: o.notifier,
		state:    StateStarting,
		reload:   make(chan struct{}, 1),
	}
}

// RequestReload asks for the current worker to be restarted, the way a
// detected binary change on disk does (see reload.go). The worker process
// is killed at once: its in-flight requests are not waited for, and new
// Invokes are not refused beforehand. Non-blocking: a reload already
// queued is not duplicated.
func (s *Supervisor) RequestReload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

func (s *Supervisor) setState(next WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkTransition(s.state, next); err != nil {
		s.logger.Warn("ignoring invalid state transition", slog.Any("err", err))
		return
	}
	s.state = next
}

func (s *Supervisor) State() WorkerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Router returns the router for the currently running worker, or nil if
// none is connected (e.g. between a crash and the next restart).
func (s *Supervisor) Router() *router.Router {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.r
}

// Stats returns a point-in-time snapshot for introspection (spec.md's
// supplemented resource-usage feature). zapctl does not read it.
type Stats struct {
	State          WorkerState
	RequestCount   uint64
	SecondsIdle    int64
	GoroutineCount int
	PendingInvokes int
}

func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{State: s.state}
	if s.monitor != nil {
		st.RequestCount = s.monitor.RequestCount()
		st.SecondsIdle = s.monitor.SecondsSinceActivity()
		st.GoroutineCount = s.monitor.GoroutineCount()
	}
	if s.r != nil {
		st.PendingInvokes = s.r.PendingCount()
	}
	return st
}

// Run launches and supervises the worker until ctx is done, restarting it
// with backoff after a crash, and at once with the backoff reset after a
// reload request (including one raised by the health loop).
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := workerrt.NewBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateStarting)
		runErr := s.runOnce(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(runErr, errReloadRequested) {
			s.logger.Info("restarting worker for hot reload")
			s.setState(StateCrashed)
			backoff.Reset()
			s.setState(StateStarting)
			continue
		}

		s.logger.Warn("worker exited, will restart", slog.Any("err", runErr))
		s.setState(StateCrashed)
		if err := backoff.Wait(ctx); err != nil {
			return err
		}
		s.setState(StateStarting)
	}
}

var errReloadRequested = errors.New("supervisor: reload requested")

// runOnce spawns one worker process, serves it until it exits or ctx is
// done, and cleans up before returning.
func (s *Supervisor) runOnce(ctx context.Context) error {
	_ = os.Remove(s.cfg.SocketPath)
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("supervisor: listen on %s: %w", s.cfg.SocketPath, err)
	}
	defer ln.Close()
	defer os.Remove(s.cfg.SocketPath)

	cmd := exec.CommandContext(ctx, s.cfg.WorkerPath, s.cfg.WorkerArgs...)
	cmd.Env = append(append(os.Environ(), s.cfg.ExtraEnv...), "ZAP_SOCKET="+s.cfg.SocketPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start worker: %w", err)
	}

	procExited := make(chan error, 1)
	go func() { procExited <- cmd.Wait() }()

	acceptCtx, cancelAccept := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancelAccept()
	conn, capabilities, err := acceptWorker(acceptCtx, ln)
	if err != nil {
		_ = cmd.Process.Kill()
		<-procExited
		return fmt.Errorf("supervisor: worker handshake: %w", err)
	}

	monitor := health.NewMonitor(s.cfg.GoroutineLimit)
	r := router.New(conn,
		router.WithLogger(s.logger),
		router.WithGlobalCapacity(s.cfg.MaxConcurrency),
		router.WithDefaultDeadline(s.cfg.DefaultDeadline),
	)

	s.mu.Lock()
	s.monitor = monitor
	s.r = r
	s.mu.Unlock()

	s.setState(StateReady)
	if s.notifier != nil {
		_ = s.notifier.Ready()
	}
	_ = capabilities

	healthDone := s.startHealthLoop(ctx, monitor, r)
	defer func() { <-healthDone }()

	select {
	case err := <-procExited:
		r.Close()
		return err
	case <-ctx.Done():
		s.setState(StateDraining)
		if s.notifier != nil {
			_ = s.notifier.Stopping()
		}
		_ = cmd.Process.Kill()
		<-procExited
		r.Close()
		return ctx.Err()
	case <-s.reload:
		s.setState(StateDraining)
		_ = cmd.Process.Kill()
		<-procExited
		r.Close()
		return errReloadRequested
	}
}

// acceptWorker waits for the worker's connection, performs the supervisor
// side of the Handshake/HandshakeAck exchange, and returns a ready
// wire.Conn plus the negotiated capabilities.
func acceptWorker(ctx context.Context, ln net.Listener) (*wire.Conn, wire.Capabilities, error) {
	type result struct {
		nc  net.Conn
		err error
	}
	accepted := make(chan result, 1)
	go func() {
		nc, err := ln.Accept()
		accepted <- result{nc, err}
	}()

	var nc net.Conn
	select {
	case r := <-accepted:
		if r.err != nil {
			return nil, 0, r.err
		}
		nc = r.nc
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	conn := wire.NewConn(nc, 0)
	msg, err := conn.Recv()
	if err != nil {
		conn.Close()
		return nil, 0, err
	}
	hs, ok := msg.(wire.Handshake)
	if !ok {
		conn.Close()
		return nil, 0, wire.ErrBeforeHandshake
	}

	negotiated := wire.Negotiate(wire.CapCancellation, hs.Capabilities)
	if err := conn.Send(ctx, wire.HandshakeAck{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    negotiated,
	}); err != nil {
		conn.Close()
		return nil, 0, err
	}
	return conn, negotiated, nil
}

// startHealthLoop polls monitor every HealthCheckInterval. Either an
// unhealthy reading (goroutine limit breached) or a hung worker (no
// activity for IdleTimeout while requests are pending) is logged and, per
// spec.md §4.5 ("if non-Ready beyond a grace period ... the supervisor
// performs a restart"), fed to RequestReload so runOnce kills and
// restarts the worker instead of leaving it wedged with its pending
// request — and every later Invoke, since WorkerState stays Ready —
// stuck forever.
func (s *Supervisor) startHealthLoop(ctx context.Context, monitor *health.Monitor, r *router.Router) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !monitor.IsHealthy() {
					s.logger.Warn("worker unhealthy: goroutine limit exceeded, requesting restart",
						slog.Int("goroutines", monitor.GoroutineCount()))
					s.RequestReload()
					return
				}
				if s.cfg.IdleTimeout > 0 && r.PendingCount() > 0 && monitor.IdleFor(s.cfg.IdleTimeout) {
					s.logger.Warn("worker appears hung: requests pending with no recent activity, requesting restart",
						slog.Int("pending", r.PendingCount()))
					s.RequestReload()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// Package supervisor starts an ordered set of stage processes, gates
// progression on health checks, and stops every recorded process on
// shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leptonai/devstack/pkg/config"
	"github.com/leptonai/devstack/pkg/healthcheck"
	"github.com/leptonai/devstack/pkg/log"
)

const (
	CheckMark   = "\033[32m✔\033[0m"
	WarningSign = "\033[31m✘\033[0m"
)

// Supervisor owns the ordered list of recorded handles.
// A handle is recorded only after its launch succeeds.
type Supervisor struct {
	cfg             *config.Config
	sessionID       string
	shutdownTimeout time.Duration

	launcher       Launcher
	checker        healthcheck.Checker
	out            io.Writer
	notifyReady    func(ctx context.Context) error
	notifyStopping func(ctx context.Context) error

	mu      sync.Mutex
	handles []*Handle

	readyOnce sync.Once
	ready     chan struct{}
}

// New validates the config and creates a supervisor.
func New(cfg *config.Config, opts ...OpOption) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	op := &Op{}
	op.applyOpts(opts)

	shutdownTimeout := cfg.ShutdownTimeout.Duration
	if shutdownTimeout <= 0 {
		shutdownTimeout = config.DefaultShutdownTimeout.Duration
	}

	return &Supervisor{
		cfg:             cfg,
		sessionID:       uuid.New().String(),
		shutdownTimeout: shutdownTimeout,

		launcher:       op.launcher,
		checker:        op.checker,
		out:            op.out,
		notifyReady:    op.notifyReady,
		notifyStopping: op.notifyStopping,

		ready: make(chan struct{}),
	}, nil
}

// SessionID identifies this supervisor run in the logs.
func (s *Supervisor) SessionID() string {
	return s.sessionID
}

// Ready is closed once every stage is launched and past its gates.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Handles returns the recorded handles in launch order.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*Handle(nil), s.handles...)
}

// Launch starts the stage process. Tracked stages are recorded once
// the launch succeeds; detached stages are released and never recorded.
func (s *Supervisor) Launch(ctx context.Context, stage config.Stage) (*Handle, error) {
	p, err := s.launcher.Launch(ctx, stage)
	if err != nil {
		return nil, &LaunchError{Stage: stage.Name, Err: err}
	}

	h := &Handle{Stage: stage, Process: p}
	if stage.Detached {
		if err := p.Release(); err != nil {
			log.Logger.Warnw("failed to release detached process", "stage", stage.Name, "error", err)
		}
		log.Logger.Infow("launched detached stage", "session", s.sessionID, "stage", stage.Name, "pid", p.PID())
		return h, nil
	}

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	log.Logger.Infow("launched stage", "session", s.sessionID, "stage", stage.Name, "pid", p.PID(), "command", p.Command())
	return h, nil
}

// WaitHealthy polls the health check once, within its timeout.
func (s *Supervisor) WaitHealthy(ctx context.Context, check config.HealthCheck) bool {
	return s.checker.WaitHealthy(ctx, check.URL, check.Timeout.Duration, check.PollInterval.Duration)
}

// Shutdown sends SIGTERM to each handle not signaled before, and waits
// for them to exit until ctx is done. Processes that already exited are
// ignored. Never escalates to SIGKILL. Safe to call repeatedly.
func (s *Supervisor) Shutdown(ctx context.Context, handles []*Handle) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, h := range handles {
		if h == nil || !h.signaled.CompareAndSwap(false, true) {
			continue
		}

		g.Go(func() error {
			log.Logger.Infow("stopping stage", "session", s.sessionID, "stage", h.Stage.Name, "pid", h.Process.PID())
			if err := h.Process.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stage %q: %w", h.Stage.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Run launches the stages in order and blocks until ctx is done,
// then shuts down every recorded handle.
//
// Returns nil on a ctx-driven shutdown, including one that interrupts
// the startup. Returns *LaunchError or *HealthCheckTimeoutError if the
// startup fails, after shutting down the handles recorded so far.
func (s *Supervisor) Run(ctx context.Context) error {
	err := s.start(ctx)
	if err == nil {
		s.markReady(ctx)
		<-ctx.Done()
	}

	interrupted := err == nil || errors.Is(err, errInterrupted)
	if interrupted {
		fmt.Fprintf(s.out, "stopping %d process(es)...\n", len(s.Handles()))
	}
	s.shutdownAll()
	if !interrupted {
		return err
	}

	fmt.Fprintf(s.out, "%s all processes stopped\n", CheckMark)
	return nil
}

var errInterrupted = errors.New("startup interrupted")

func (s *Supervisor) start(ctx context.Context) error {
	for _, stage := range s.cfg.Stages {
		if ctx.Err() != nil {
			return errInterrupted
		}

		fmt.Fprintf(s.out, "starting %s...\n", stage.Name)
		h, err := s.Launch(ctx, stage)
		if err != nil {
			if ctx.Err() != nil {
				return errInterrupted
			}
			fmt.Fprintf(s.out, "%s %v\n", WarningSign, err)
			log.Logger.Errorw("failed to launch stage", "session", s.sessionID, "stage", stage.Name, "error", err)
			return err
		}
		if stage.Detached {
			fmt.Fprintf(s.out, "%s %s launched (pid %d)\n", CheckMark, stage.Name, h.Process.PID())
		}

		if d := stage.StartupDelay.Duration; d > 0 {
			if err := sleepContext(ctx, d); err != nil {
				return errInterrupted
			}
		}

		if stage.HealthCheck != nil {
			if !s.WaitHealthy(ctx, *stage.HealthCheck) {
				if ctx.Err() != nil {
					return errInterrupted
				}
				hcErr := &HealthCheckTimeoutError{
					Stage:   stage.Name,
					URL:     stage.HealthCheck.URL,
					Timeout: stage.HealthCheck.Timeout.Duration,
				}
				fmt.Fprintf(s.out, "%s %s failed to start: %v\n", WarningSign, stage.Name, hcErr)
				log.Logger.Errorw("stage health check failed", "session", s.sessionID, "stage", stage.Name, "error", hcErr)
				return hcErr
			}
		}
	}

	for _, h := range s.Handles() {
		fmt.Fprintf(s.out, "%s %s running%s (pid %d)\n", CheckMark, h.Stage.Name, describePort(h.Stage), h.Process.PID())
	}
	return nil
}

func (s *Supervisor) markReady(ctx context.Context) {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
	if err := s.notifyReady(ctx); err != nil {
		log.Logger.Warnw("notify ready failed", "error", err)
	}
	log.Logger.Infow("stack is up", "session", s.sessionID, "processes", len(s.Handles()))
}

// shutdownAll uses a fresh context: the run context is already done.
func (s *Supervisor) shutdownAll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.notifyStopping(ctx); err != nil {
		log.Logger.Warnw("notify stopping failed", "error", err)
	}
	if err := s.Shutdown(ctx, s.Handles()); err != nil {
		log.Logger.Warnw("shutdown finished with errors", "session", s.sessionID, "error", err)
	}
}

func describePort(st config.Stage) string {
	if st.Port <= 0 {
		return ""
	}
	return fmt.Sprintf(" on http://localhost:%d", st.Port)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leptonai/devstack/pkg/config"
	"github.com/leptonai/devstack/pkg/process"
)

// recorder keeps the ordered launch/close events across fakes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var _ process.Process = &mockProcess{}

type mockProcess struct {
	name      string
	pid       int32
	command   []string
	startedAt time.Time
	rec       *recorder

	closeCalls atomic.Int32
	released   atomic.Bool
	closeErr   error

	doneOnce sync.Once
	done     chan struct{}
	errc     chan error
}

func newMockProcess(name string, pid int32, rec *recorder) *mockProcess {
	return &mockProcess{
		name:      name,
		pid:       pid,
		command:   []string{name},
		startedAt: time.Now().UTC(),
		rec:       rec,
		done:      make(chan struct{}),
		errc:      make(chan error, 1),
	}
}

func (m *mockProcess) Name() string { return m.name }
func (m *mockProcess) Command() []string { return m.command }
func (m *mockProcess) WorkDir() string { return "" }
func (m *mockProcess) Start(context.Context) error { return nil }
func (m *mockProcess) Started() bool { return true }
func (m *mockProcess) StartedAt() time.Time { return m.startedAt }
func (m *mockProcess) Closed() bool { return m.closeCalls.Load() > 0 }
func (m *mockProcess) Wait() <-chan error { return m.errc }
func (m *mockProcess) Done() <-chan struct{} { return m.done }
func (m *mockProcess) PID() int32 { return m.pid }
func (m *mockProcess) ExitCode() int32 { return 0 }

func (m *mockProcess) Close(context.Context) error {
	m.closeCalls.Add(1)
	m.rec.add("close:" + m.name)
	m.doneOnce.Do(func() {
		close(m.errc)
		close(m.done)
	})
	return m.closeErr
}

func (m *mockProcess) Release() error {
	m.released.Store(true)
	return nil
}

var _ Launcher = &mockLauncher{}

type mockLauncher struct {
	rec     *recorder
	failOn  map[string]error
	nextPID atomic.Int32

	mu    sync.Mutex
	procs map[string]*mockProcess
}

func newMockLauncher(rec *recorder) *mockLauncher {
	l := &mockLauncher{
		rec:    rec,
		failOn: make(map[string]error),
		procs:  make(map[string]*mockProcess),
	}
	l.nextPID.Store(1000)
	return l
}

func (l *mockLauncher) Launch(_ context.Context, stage config.Stage) (process.Process, error) {
	if err, ok := l.failOn[stage.Name]; ok {
		l.rec.add("launch-failed:" + stage.Name)
		return nil, err
	}
	l.rec.add("launch:" + stage.Name)

	p := newMockProcess(stage.Name, l.nextPID.Add(1), l.rec)
	l.mu.Lock()
	l.procs[stage.Name] = p
	l.mu.Unlock()
	return p, nil
}

func (l *mockLauncher) get(name string) *mockProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[name]
}

type mockChecker struct {
	rec     *recorder
	healthy bool
	// blocks until ctx is done when set
	block bool
	calls atomic.Int32
}

func (c *mockChecker) WaitHealthy(ctx context.Context, url string, _ time.Duration, _ time.Duration) bool {
	c.calls.Add(1)
	c.rec.add("health:" + url)
	if c.block {
		<-ctx.Done()
		return false
	}
	return c.healthy
}

// syncBuffer is a goroutine-safe output sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

var errSpawn = errors.New("fork/exec: resource temporarily unavailable")

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/leptonai/devstack/pkg/config"
)

func testStack() *config.Config {
	return &config.Config{
		APIVersion:      config.DefaultAPIVersion,
		ShutdownTimeout: metav1.Duration{Duration: time.Second},
		Stages: []config.Stage{
			{
				Name:     "browser",
				Command:  []string{"chrome", "--remote-debugging-port=9222"},
				Detached: true,
				Port:     9222,
			},
			{
				Name:         "backend",
				Script:       "exec python api_server.py",
				StartupDelay: metav1.Duration{Duration: 10 * time.Millisecond},
				HealthCheck: &config.HealthCheck{
					URL:          "http://localhost:8000/health",
					Timeout:      metav1.Duration{Duration: time.Second},
					PollInterval: metav1.Duration{Duration: 10 * time.Millisecond},
				},
				Port: 8000,
			},
			{
				Name:         "frontend",
				Command:      []string{"npm", "run", "dev"},
				WorkDir:      "frontend",
				StartupDelay: metav1.Duration{Duration: 10 * time.Millisecond},
				Port:         3000,
			},
		},
	}
}

type testEnv struct {
	rec      *recorder
	launcher *mockLauncher
	checker  *mockChecker
	out      *syncBuffer
	sup      *Supervisor

	readyCalls    int
	stoppingCalls int
}

func newTestEnv(t *testing.T, cfg *config.Config, healthy bool) *testEnv {
	t.Helper()

	env := &testEnv{rec: &recorder{}, out: &syncBuffer{}}
	env.launcher = newMockLauncher(env.rec)
	env.checker = &mockChecker{rec: env.rec, healthy: healthy}

	sup, err := New(cfg,
		WithLauncher(env.launcher),
		WithChecker(env.checker),
		WithOutput(env.out),
		WithNotifiers(
			func(context.Context) error { env.readyCalls++; return nil },
			func(context.Context) error { env.stoppingCalls++; return nil },
		),
	)
	require.NoError(t, err)
	env.sup = sup
	return env
}

func runAsync(ctx context.Context, s *Supervisor) <-chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(ctx)
	}()
	return errc
}

func waitRun(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not return")
		return nil
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&config.Config{APIVersion: "v1"})
	require.ErrorIs(t, err, config.ErrNoStages)

	sup, err := New(testStack())
	require.NoError(t, err)
	assert.NotEmpty(t, sup.SessionID())
	assert.Empty(t, sup.Handles())
}

// healthy backend: the frontend is launched and both report running
func TestRunHealthyThenInterrupt(t *testing.T) {
	env := newTestEnv(t, testStack(), true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := runAsync(ctx, env.sup)

	select {
	case <-env.sup.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("stack never became ready")
	}

	out := env.out.String()
	assert.Contains(t, out, "backend running on http://localhost:8000")
	assert.Contains(t, out, "frontend running on http://localhost:3000")
	assert.Contains(t, out, "browser launched")

	handles := env.sup.Handles()
	require.Len(t, handles, 2, "the detached browser is never recorded")
	assert.Equal(t, "backend", handles[0].Stage.Name)
	assert.Equal(t, "frontend", handles[1].Stage.Name)

	cancel()
	require.NoError(t, waitRun(t, errc))

	backend := env.launcher.get("backend")
	frontend := env.launcher.get("frontend")
	browser := env.launcher.get("browser")
	assert.Equal(t, int32(1), backend.closeCalls.Load())
	assert.Equal(t, int32(1), frontend.closeCalls.Load())
	assert.Equal(t, int32(0), browser.closeCalls.Load())
	assert.True(t, browser.released.Load())

	for _, h := range handles {
		assert.True(t, h.Signaled())
	}
	assert.Equal(t, 1, env.readyCalls)
	assert.Equal(t, 1, env.stoppingCalls)
	assert.Contains(t, env.out.String(), "all processes stopped")

	assert.Equal(t, []string{
		"launch:browser",
		"launch:backend",
		"health:http://localhost:8000/health",
		"launch:frontend",
	}, env.rec.all()[:4])
}

// unhealthy backend: backend signaled, frontend never launched
func TestRunHealthCheckFails(t *testing.T) {
	env := newTestEnv(t, testStack(), false)

	err := env.sup.Run(context.Background())
	require.Error(t, err)

	var hcErr *HealthCheckTimeoutError
	require.True(t, errors.As(err, &hcErr))
	assert.Equal(t, "backend", hcErr.Stage)
	assert.Equal(t, "http://localhost:8000/health", hcErr.URL)
	assert.Equal(t, time.Second, hcErr.Timeout)

	assert.Nil(t, env.launcher.get("frontend"), "frontend must never be launched")
	assert.Equal(t, int32(1), env.launcher.get("backend").closeCalls.Load())
	assert.Equal(t, int32(0), env.launcher.get("browser").closeCalls.Load())

	assert.Equal(t, []string{
		"launch:browser",
		"launch:backend",
		"health:http://localhost:8000/health",
		"close:backend",
	}, env.rec.all())

	out := env.out.String()
	assert.Contains(t, out, "backend failed to start")
	assert.NotContains(t, out, "running")

	select {
	case <-env.sup.Ready():
		t.Fatal("ready must not be signaled on failure")
	default:
	}
	assert.Equal(t, 0, env.readyCalls)
}

func TestRunLaunchFailureStopsRecorded(t *testing.T) {
	env := newTestEnv(t, testStack(), true)
	env.launcher.failOn["frontend"] = errSpawn

	err := env.sup.Run(context.Background())
	require.Error(t, err)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, "frontend", launchErr.Stage)
	assert.ErrorIs(t, err, errSpawn)

	require.Len(t, env.sup.Handles(), 1)
	assert.Equal(t, int32(1), env.launcher.get("backend").closeCalls.Load())
	assert.Contains(t, env.out.String(), `failed to launch "frontend"`)
}

func TestRunFirstLaunchFailureNothingToStop(t *testing.T) {
	cfg := testStack()
	cfg.Stages = cfg.Stages[1:]
	env := newTestEnv(t, cfg, true)
	env.launcher.failOn["backend"] = errSpawn

	err := env.sup.Run(context.Background())
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Empty(t, env.sup.Handles())
	assert.Equal(t, int32(0), env.checker.calls.Load())
}

func TestRunInterruptedDuringStartupDelay(t *testing.T) {
	cfg := testStack()
	cfg.Stages[1].StartupDelay = metav1.Duration{Duration: time.Minute}
	env := newTestEnv(t, cfg, true)

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, env.sup)

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, waitRun(t, errc))

	assert.Equal(t, int32(0), env.checker.calls.Load())
	assert.Nil(t, env.launcher.get("frontend"))
	assert.Equal(t, int32(1), env.launcher.get("backend").closeCalls.Load())
}

func TestRunInterruptedDuringHealthCheck(t *testing.T) {
	env := newTestEnv(t, testStack(), false)
	env.checker.block = true

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(ctx, env.sup)

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, waitRun(t, errc), "an interrupt is not a health failure")

	assert.Nil(t, env.launcher.get("frontend"))
	assert.Equal(t, int32(1), env.launcher.get("backend").closeCalls.Load())
}

func TestShutdownIdempotent(t *testing.T) {
	env := newTestEnv(t, testStack(), true)

	ctx := context.Background()
	_, err := env.sup.Launch(ctx, testStack().Stages[1])
	require.NoError(t, err)
	_, err = env.sup.Launch(ctx, testStack().Stages[2])
	require.NoError(t, err)

	handles := env.sup.Handles()
	require.Len(t, handles, 2)

	require.NoError(t, env.sup.Shutdown(ctx, handles))
	require.NoError(t, env.sup.Shutdown(ctx, handles))
	require.NoError(t, env.sup.Shutdown(ctx, append(handles, nil)))

	assert.Equal(t, int32(1), env.launcher.get("backend").closeCalls.Load())
	assert.Equal(t, int32(1), env.launcher.get("frontend").closeCalls.Load())
}

func TestShutdownCollectsErrors(t *testing.T) {
	env := newTestEnv(t, testStack(), true)

	ctx := context.Background()
	h, err := env.sup.Launch(ctx, testStack().Stages[1])
	require.NoError(t, err)
	h.Process.(*mockProcess).closeErr = errors.New("permission denied")

	err = env.sup.Shutdown(ctx, []*Handle{h})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stage "backend"`)

	// already signaled: nothing to report
	require.NoError(t, env.sup.Shutdown(ctx, []*Handle{h}))
}

func TestLaunchDetachedNotRecorded(t *testing.T) {
	env := newTestEnv(t, testStack(), true)

	h, err := env.sup.Launch(context.Background(), testStack().Stages[0])
	require.NoError(t, err)
	assert.Equal(t, "browser", h.Stage.Name)
	assert.Empty(t, env.sup.Handles())
	assert.True(t, env.launcher.get("browser").released.Load())
}

func TestLaunchErrorMessage(t *testing.T) {
	err := &LaunchError{Stage: "backend", Err: errSpawn}
	assert.Equal(t, `failed to launch "backend": fork/exec: resource temporarily unavailable`, err.Error())
	assert.ErrorIs(t, err, errSpawn)

	hc := &HealthCheckTimeoutError{Stage: "backend", URL: "http://localhost:8000/health", Timeout: 30 * time.Second}
	assert.Equal(t, `"backend" not healthy at http://localhost:8000/health after 30s`, hc.Error())
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Minute), context.Canceled)
}

package supervisor

import (
	"fmt"
	"time"
)

// LaunchError is returned when a stage process fails to start,
// e.g., the executable is missing or spawning fails.
type LaunchError struct {
	Stage string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// HealthCheckTimeoutError is returned when a gated stage
// did not become healthy within its timeout.
type HealthCheckTimeoutError struct {
	Stage   string
	URL     string
	Timeout time.Duration
}

func (e *HealthCheckTimeoutError) Error() string {
	return fmt.Sprintf("%q not healthy at %s after %v", e.Stage, e.URL, e.Timeout)
}

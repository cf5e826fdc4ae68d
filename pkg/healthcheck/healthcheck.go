// Package healthcheck implements HTTP liveness polling used to gate
// the startup of the next stage.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/leptonai/devstack/pkg/log"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond

	// upper bound for a single probe, so one hung request
	// cannot consume the whole timeout
	defaultRequestTimeout = 2 * time.Second
)

// Checker waits for an endpoint to become healthy.
type Checker interface {
	// WaitHealthy polls url until it returns a 2xx status or the timeout
	// elapses. Returns false on timeout or context cancellation.
	WaitHealthy(ctx context.Context, url string, timeout time.Duration, pollInterval time.Duration) bool
}

var _ Checker = &HTTPChecker{}

// HTTPChecker polls with plain GET requests.
type HTTPChecker struct {
	// RequestTimeout bounds each probe. Defaults to 2 seconds.
	RequestTimeout time.Duration
}

// WaitHealthy is a convenience for (&HTTPChecker{}).WaitHealthy.
func WaitHealthy(ctx context.Context, url string, timeout time.Duration, pollInterval time.Duration) bool {
	return (&HTTPChecker{}).WaitHealthy(ctx, url, timeout, pollInterval)
}

func (c *HTTPChecker) WaitHealthy(ctx context.Context, url string, timeout time.Duration, pollInterval time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	start := time.Now()
	err := c.poll(ctx, url, timeout, pollInterval)
	if err != nil {
		log.Logger.Warnw("endpoint not healthy", "url", url, "timeout", timeout, "elapsed", time.Since(start), "error", err)
		return false
	}

	log.Logger.Infow("endpoint healthy", "url", url, "elapsed", time.Since(start))
	return true
}

var ErrUnhealthy = errors.New("unhealthy response status")

func (c *HTTPChecker) poll(ctx context.Context, url string, timeout time.Duration, pollInterval time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.newClient(timeout, pollInterval).Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !isHealthy(resp) {
		return fmt.Errorf("%w: %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

func (c *HTTPChecker) newClient(timeout time.Duration, pollInterval time.Duration) *retryablehttp.Client {
	reqTimeout := c.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = defaultRequestTimeout
	}
	if reqTimeout > timeout {
		reqTimeout = timeout
	}

	cli := retryablehttp.NewClient()
	cli.HTTPClient = &http.Client{Timeout: reqTimeout}
	cli.Logger = leveledLogger{}

	// the context deadline bounds the attempts, not a retry budget
	cli.RetryMax = math.MaxInt32
	cli.RetryWaitMin = pollInterval
	cli.RetryWaitMax = pollInterval
	cli.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return pollInterval
	}
	cli.CheckRetry = checkRetry
	cli.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return cli
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		// connection refused while the server is still booting
		return true, nil
	}
	return !isHealthy(resp), nil
}

func isHealthy(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
}

// leveledLogger routes the retry client logs into the debug level.
type leveledLogger struct{}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Logger.Debugw(msg, keysAndValues...)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Logger.Debugw(msg, keysAndValues...)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	log.Logger.Debugw(msg, keysAndValues...)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Logger.Debugw(msg, keysAndValues...)
}

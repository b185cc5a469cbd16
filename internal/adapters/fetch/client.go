// Package fetch implements the rate-limited JSON GET client shared by the
// zKillboard and ESI adapters.
//
// Policy per request:
//   - 200 decodes the body; a decode failure is retried like a server error.
//   - 404 returns ErrNotFound at once.
//   - 429 waits Retry-After (capped) and retries without spending an attempt.
//   - anything else waits backoffStep*attempt and retries until the attempt
//     budget is spent, then returns an error wrapping ErrExhausted.
//
// ESI reports its remaining error budget in X-Esi-Error-Limit-Remain and
// X-Esi-Error-Limit-Reset. When the last seen budget is under the threshold
// the next request first waits for the window to reset.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/killsync/pkg/logger"
	"github.com/okian/killsync/pkg/metrics"
)

// Header names used by ESI to publish the error budget.
const (
	HeaderErrorLimitRemain = "X-Esi-Error-Limit-Remain"
	HeaderErrorLimitReset  = "X-Esi-Error-Limit-Reset"
)

// drainLimit bounds how much of a discarded body is read before closing.
const drainLimit = 64 << 10

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client performs JSON GETs with retries and rate-limit handling.
type Client struct {
	http      *http.Client
	userAgent string
	upstream  string
	log       logger.Logger
	sleep     Sleeper

	maxAttempts         int
	backoffStep         time.Duration
	retryAfterDefault   time.Duration
	retryAfterMax       time.Duration
	errorLimitThreshold int
	errorLimitMaxWait   time.Duration

	mu     sync.Mutex
	budget errorBudget
}

type errorBudget struct {
	known  bool
	remain int
	reset  time.Duration
}

// rateLimited is the internal result of a 429.
type rateLimited struct {
	wait time.Duration
}

func (r *rateLimited) Error() string { return fmt.Sprintf("rate limited, retry after %s", r.wait) }

// New creates a Client with the default policy (3 attempts, 5s step,
// 60s/300s Retry-After, error budget threshold 20 capped at 30s).
func New(opts ...Option) *Client {
	c := &Client{
		http:                &http.Client{Timeout: 30 * time.Second},
		userAgent:           "killsync",
		upstream:            "default",
		log:                 logger.Nop(),
		sleep:               Sleep,
		maxAttempts:         3,
		backoffStep:         5 * time.Second,
		retryAfterDefault:   60 * time.Second,
		retryAfterMax:       300 * time.Second,
		errorLimitThreshold: 20,
		errorLimitMaxWait:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches url and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	failures := 0
	for {
		if err := c.waitErrorBudget(ctx); err != nil {
			return err
		}

		err := c.do(ctx, url, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var rl *rateLimited
		if errors.As(err, &rl) {
			c.log.Warn(ctx, "rate limited",
				logger.String("upstream", c.upstream),
				logger.String("url", url),
				logger.Duration("wait", rl.wait))
			metrics.RecordRateLimitWait(c.upstream, "retry_after", rl.wait)
			if err := c.sleep(ctx, rl.wait); err != nil {
				return err
			}
			continue
		}

		failures++
		if failures >= c.maxAttempts {
			metrics.RecordFetchFailure(c.upstream, "exhausted")
			c.log.Error(ctx, "fetch failed",
				logger.String("upstream", c.upstream),
				logger.String("url", url),
				logger.Int("attempts", failures),
				logger.Error(err))
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrExhausted, url, failures, err)
		}

		wait := c.backoffStep * time.Duration(failures)
		c.log.Debug(ctx, "retrying fetch",
			logger.String("upstream", c.upstream),
			logger.String("url", url),
			logger.Int("attempt", failures),
			logger.Duration("wait", wait),
			logger.Error(err))
		metrics.RecordFetchRetry(c.upstream)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordFetchRequest(c.upstream, "error")
		return fmt.Errorf("fetch: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		_ = resp.Body.Close()
	}()

	metrics.RecordFetchRequest(c.upstream, strconv.Itoa(resp.StatusCode))
	c.observeErrorBudget(resp.Header)

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("fetch: decode %s: %w", url, err)
		}
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	case http.StatusTooManyRequests:
		return &rateLimited{wait: c.retryAfter(resp.Header.Get("Retry-After"))}
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// retryAfter converts a Retry-After header in seconds into a wait.
func (c *Client) retryAfter(v string) time.Duration {
	wait := c.retryAfterDefault
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if c.retryAfterMax > 0 && wait > c.retryAfterMax {
		wait = c.retryAfterMax
	}
	return wait
}

func (c *Client) observeErrorBudget(h http.Header) {
	remainRaw := h.Get(HeaderErrorLimitRemain)
	if remainRaw == "" {
		return
	}
	remain, err := strconv.Atoi(strings.TrimSpace(remainRaw))
	if err != nil {
		return
	}
	reset, _ := strconv.Atoi(strings.TrimSpace(h.Get(HeaderErrorLimitReset)))

	c.mu.Lock()
	c.budget = errorBudget{known: true, remain: remain, reset: time.Duration(reset) * time.Second}
	c.mu.Unlock()
}

// waitErrorBudget pauses when the last reported budget is low and clears it.
func (c *Client) waitErrorBudget(ctx context.Context) error {
	if c.errorLimitThreshold <= 0 {
		return nil
	}
	c.mu.Lock()
	b := c.budget
	low := b.known && b.remain < c.errorLimitThreshold
	if low {
		c.budget = errorBudget{}
	}
	c.mu.Unlock()
	if !low {
		return nil
	}

	wait := b.reset + time.Second
	if c.errorLimitMaxWait > 0 && wait > c.errorLimitMaxWait {
		wait = c.errorLimitMaxWait
	}
	c.log.Warn(ctx, "error budget low, pausing",
		logger.String("upstream", c.upstream),
		logger.Int("remain", b.remain),
		logger.Duration("wait", wait))
	metrics.RecordRateLimitWait(c.upstream, "error_limit", wait)
	return c.sleep(ctx, wait)
}

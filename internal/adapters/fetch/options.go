package fetch

import (
	"net/http"
	"time"

	"github.com/okian/killsync/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSleeper replaces the wait function used for backoff and rate limits.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithMaxAttempts sets how many non-429 attempts a request gets.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoffStep sets the linear backoff unit; attempt k waits k*step.
func WithBackoffStep(d time.Duration) Option {
	return func(c *Client) { c.backoffStep = d }
}

// WithRetryAfter sets the wait used when a 429 carries no usable
// Retry-After header and the cap applied to any 429 wait.
func WithRetryAfter(def, maxWait time.Duration) Option {
	return func(c *Client) {
		c.retryAfterDefault = def
		c.retryAfterMax = maxWait
	}
}

// WithErrorLimit configures the pre-emptive pause on the ESI error budget.
// A threshold of zero disables it.
func WithErrorLimit(threshold int, maxWait time.Duration) Option {
	return func(c *Client) {
		c.errorLimitThreshold = threshold
		c.errorLimitMaxWait = maxWait
	}
}

// WithUpstream sets the upstream label used in metrics and logs.
func WithUpstream(name string) Option {
	return func(c *Client) { c.upstream = name }
}

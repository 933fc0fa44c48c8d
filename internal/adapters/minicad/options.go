package minicad

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/trainingbot/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the basic auth user and password.
func WithCredentials(user, pass string) Option {
	return func(c *Client) {
		c.user = user
		c.pass = pass
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(b backoff.BackOff) Option {
	return func(c *Client) {
		if b != nil {
			c.backoff = func() backoff.BackOff { return b }
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

package vectorsolutions

import (
	"time"

	"github.com/okian/trainingbot/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithCredentials enables scripted login.
func WithCredentials(user, pass string) Option {
	return func(c *Client) {
		c.user = user
		c.pass = pass
	}
}

// WithAuthState sets the cookie file restored on start and saved after login.
func WithAuthState(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.authPath = path
		}
	}
}

// WithHeadless toggles headless Chromium.
func WithHeadless(enabled bool) Option {
	return func(c *Client) { c.headless = enabled }
}

// WithBrowserBin points at a Chromium binary instead of the managed download.
func WithBrowserBin(path string) Option {
	return func(c *Client) { c.bin = path }
}

// WithNavTimeout bounds every navigation and element lookup.
func WithNavTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.navTimeout = d
		}
	}
}

// WithArtifactDir sets where screenshots go. Empty disables them.
func WithArtifactDir(dir string) Option {
	return func(c *Client) { c.artifactDir = dir }
}

// WithSelectors replaces the form selectors.
func WithSelectors(s Selectors) Option {
	return func(c *Client) { c.sel = s }
}

// WithControlURL attaches to an already running browser instead of
// launching one.
func WithControlURL(u string) Option {
	return func(c *Client) { c.controlURL = u }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

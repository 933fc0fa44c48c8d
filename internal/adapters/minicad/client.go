// Package minicad fetches the live personnel roster from the MiniCad feed.
package minicad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/roster"
	"github.com/okian/trainingbot/pkg/logger"
	"github.com/okian/trainingbot/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 3
	maxBodyBytes   = 16 << 20
	maxRetryWindow = 2 * time.Minute
)

// Fetcher reads the current roster.
type Fetcher interface {
	Fetch(ctx context.Context) (roster.Roster, error)
}

// Client fetches the roster over HTTP with basic auth.
type Client struct {
	url     string
	user    string
	pass    string
	timeout time.Duration
	retries int
	http    *http.Client
	backoff func() backoff.BackOff
	log     logger.Logger
}

// NewClient creates a Client for the feed at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		timeout: defaultTimeout,
		retries: defaultRetries,
		http:    &http.Client{},
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:     logger.Get().Named("minicad"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and parses the roster. Rejected credentials are an
// AuthError and are not retried. Network errors, timeouts and 5xx responses
// are retried, then reported as FeedUnavailable. A payload without staffed
// units is a FormatError.
func (c *Client) Fetch(ctx context.Context) (roster.Roster, error) {
	if c.url == "" {
		return roster.Roster{}, feedErr(model.ErrFeedUnavailable, "feed url is not configured")
	}

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		return c.get(ctx)
	},
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(uint(c.retries+1)), //nolint:gosec // retries validated non-negative
		backoff.WithMaxElapsedTime(maxRetryWindow),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RecordFeedRequest("retry")
			c.log.Warn(ctx, "feed request failed, retrying",
				logger.Int("attempt", attempt), logger.Duration("next", next), logger.Error(err))
		}),
	)
	if err != nil {
		if errors.Is(err, model.ErrAuth) || errors.Is(err, model.ErrFeedUnavailable) {
			metrics.RecordFeedRequest(string(model.KindOf(err)))
			return roster.Roster{}, model.NewStageError(model.StageFetch, "", err)
		}
		metrics.RecordFeedRequest(string(model.KindFeedUnavailable))
		return roster.Roster{}, feedErr(model.ErrFeedUnavailable, "%v", err)
	}

	r, err := Parse(body)
	if err != nil {
		metrics.RecordFeedRequest(string(model.KindFormat))
		return roster.Roster{}, model.NewStageError(model.StageFetch, "", err)
	}
	metrics.RecordFeedRequest("ok")
	c.log.Info(ctx, "roster fetched",
		logger.Int("units", len(r.Units)), logger.Int("staff", r.Size()), logger.Int("attempts", attempt))
	return r, nil
}

// get performs one request. Errors that must not be retried are wrapped in
// backoff.Permanent.
func (c *Client) get(ctx context.Context) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: build request: %w", model.ErrFeedUnavailable, err))
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", model.ErrFeedUnavailable, ctx.Err()))
		}
		return nil, fmt.Errorf("%w: %w", model.ErrFeedUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: feed returned %s", model.ErrAuth, resp.Status))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: feed returned %s", model.ErrFeedUnavailable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("%w: feed returned %s", model.ErrFeedUnavailable, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", model.ErrFeedUnavailable, err)
	}
	return body, nil
}

// Package transport provides the paced HTTP client shared by the REST clients.
package transport

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/takak2166/confluence2openwebui/internal/syncerr"
)

// Client is an http.Client with an optional request rate limit.
// It is safe for concurrent use.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client with a per-call timeout. ratePerSecond of 0 disables pacing.
func New(timeout time.Duration, ratePerSecond float64) *Client {
	c := &Client{
		http: &http.Client{Timeout: timeout},
	}
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return c
}

// Do waits for the rate limiter and sends the request. Transport failures
// come back as syncerr network or cancellation errors.
func (c *Client) Do(op string, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, syncerr.FromTransport(op, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, syncerr.FromTransport(op, err)
	}
	return resp, nil
}

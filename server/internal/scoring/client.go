package scoring

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one scoring round trip when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a backend response is read.
const maxBodyBytes = 1 << 20

// ErrUnavailable is wrapped by every error Score returns.
var ErrUnavailable = errors.New("scoring: unavailable")

// Result is a successful classification of one URL.
type Result struct {
	Score  float64
	Reason string
}

// Scorer is anything that can score a URL. The coordinator depends on this
// interface so tests can substitute a fake backend.
type Scorer interface {
	Score(ctx context.Context, url string) (Result, error)
}

// Options configures a Client.
type Options struct {
	Endpoint string

	// Timeout bounds the whole round trip, including reading the body.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification for the
	// backend. Only for development backends behind self-signed certs.
	InsecureSkipVerify bool
}

// Client scores URLs against an HTTP backend.
type Client struct {
	endpoint string
	http     *http.Client
}

// New builds a Client from opts.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &Client{
		endpoint: opts.Endpoint,
		http:     &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Endpoint returns the backend URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	URL string `json:"url"`
}

type response struct {
	Score  *float64 `json:"score"`
	Reason string   `json:"reason"`
}

// Score asks the backend to classify url.
func (c *Client) Score(ctx context.Context, url string) (Result, error) {
	if url == "" {
		return Result{}, fmt.Errorf("%w: empty url", ErrUnavailable)
	}

	body, err := json.Marshal(request{URL: url})
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode request: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: http post: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)) //nolint:errcheck
		return Result{}, fmt.Errorf("%w: backend returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}

	if out.Score == nil {
		return Result{}, fmt.Errorf("%w: response has no numeric score", ErrUnavailable)
	}
	return Result{Score: *out.Score, Reason: out.Reason}, nil
}

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/viewer/internal/view"
)

const (
	viewerPath = "/ws/viewer"

	// pongWait is how long to wait for any frame (data or ping) before
	// treating the connection as dead. The hub pings every 54s.
	pongWait = 75 * time.Second

	writeTimeout = 10 * time.Second

	retryFirst = 1 * time.Second
	retryCap   = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	// Hub is the hub base URL: ws://, wss://, http:// or https://.
	Hub string

	// Session is the session key to follow.
	Session string

	// APIKey is sent in Header when set.
	APIKey string

	// Header carries APIKey (default "x-api-key").
	Header string

	// OnChange is called after every frame that changed the view.
	OnChange func(*view.View)

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// RetryInitial overrides the first reconnect delay.
	RetryInitial time.Duration
}

// Client follows one session on a hub.
type Client struct {
	opts Options
	url  string
	view *view.View
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.Session == "" {
		return nil, errors.New("stream: session key is required")
	}
	u, err := StreamURL(opts.Hub, opts.Session)
	if err != nil {
		return nil, err
	}
	if opts.Header == "" {
		opts.Header = "x-api-key"
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts, url: u, view: view.New(opts.Session)}, nil
}

// View returns the view the client keeps in sync.
func (c *Client) View() *view.View { return c.view }

// Run connects and keeps the view in sync until ctx is cancelled. It
// reconnects with exponential backoff when the connection is lost.
func (c *Client) Run(ctx context.Context) error {
	retry := reconnectDelay{first: c.opts.RetryInitial}

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := c.dial(ctx)
		if err != nil {
			wait := retry.after()
			slog.Warn("stream: dial failed, will retry", "hub", c.url, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		slog.Info("stream: connected", "hub", c.url, "session", c.opts.Session)
		retry.attempt = 0

		err = c.consume(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		wait := retry.after()
		slog.Warn("stream: connection lost, will reconnect", "hub", c.url, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// StreamURL builds the viewer stream URL for hub and session.
func StreamURL(hub, session string) (string, error) {
	u, err := url.Parse(strings.TrimRight(hub, "/"))
	if err != nil {
		return "", fmt.Errorf("stream: parse hub url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("stream: unsupported hub scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream: hub url %q has no host", hub)
	}
	u.Path += viewerPath
	q := u.Query()
	q.Set("session", session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// --- internal ---------------------------------------------------------------

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.APIKey != "" {
		header.Set(c.opts.Header, c.opts.APIKey)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// consume announces the viewer and applies frames until the connection fails
// or ctx is cancelled.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(types.ViewerReady{Type: types.TypeViewerReady, SessionKey: c.opts.Session}); err != nil {
		return fmt.Errorf("send viewer-ready: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		changed, err := c.view.ApplyFrame(data)
		if err != nil {
			slog.Debug("stream: ignoring malformed frame", "err", err)
			continue
		}
		if changed && c.opts.OnChange != nil {
			c.opts.OnChange(c.view)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// reconnectDelay yields the wait before reconnect attempt n: first * 2^n,
// capped at retryCap, with ±25% jitter.
type reconnectDelay struct {
	first   time.Duration
	attempt int
}

func (r *reconnectDelay) after() time.Duration {
	base := r.first
	if base <= 0 {
		base = retryFirst
	}
	for i := 0; i < r.attempt && base < retryCap; i++ {
		base *= 2
	}
	base = min(base, retryCap)
	if base < retryCap {
		r.attempt++
	}
	spread := float64(base) / 4
	return base + time.Duration(spread*(2*rand.Float64()-1)) //nolint:gosec // not crypto
}

// Package fetch issues the directory request and classifies the response.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-polygons/internal/metrics"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 32 << 20
)

// Page is content to show in a new viewing context.
type Page struct {
	URL  string
	Body string
}

// Notifier surfaces fetch problems to the user.
type Notifier interface {
	Alert(message string)
	OpenPage(page Page)
}

type nopNotifier struct{}

func (nopNotifier) Alert(string)  {}
func (nopNotifier) OpenPage(Page) {}

// Client fetches the polygon directory.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	notifier Notifier
	logger   *zap.Logger
	markers  []string
	title    string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithNotifier sets where alerts and pages go.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAuthMarkers overrides the body fragments that identify a sign-in page.
func WithAuthMarkers(markers ...string) Option {
	return func(c *Client) { c.markers = markers }
}

// WithTitle sets the prefix of alert messages.
func WithTitle(title string) Option {
	return func(c *Client) { c.title = title }
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{},
		timeout:  DefaultTimeout,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		markers:  DefaultAuthMarkers,
		title:    "MapRaid Polygons",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	return c
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Fetch performs one GET and reports anything but success to the notifier.
// It never retries.
func (c *Client) Fetch(ctx context.Context, url string) Outcome {
	start := time.Now()
	out := c.do(ctx, url)
	metrics.FetchTotal.WithLabelValues(out.Kind.String()).Inc()
	metrics.FetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))

	c.logger.Debug("directory fetched",
		zap.String("url", url),
		zap.Stringer("outcome", out.Kind),
		zap.Int("status", out.Status),
		zap.Duration("duration", time.Since(start)),
	)
	c.report(out)
	return out
}

func (c *Client) do(parent context.Context, url string) Outcome {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportOutcome(parent, err)
	}
	if resp == nil {
		return Outcome{Kind: EmptyResponse}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportOutcome(parent, err)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return Classify(resp.StatusCode, resp.Header, body, finalURL, c.markers)
}

func transportOutcome(parent context.Context, err error) Outcome {
	if errors.Is(parent.Err(), context.Canceled) {
		return Outcome{Kind: Canceled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: Timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Kind: Timeout, Err: err}
	}
	return Outcome{Kind: NetworkError, Err: err}
}

func (c *Client) report(out Outcome) {
	switch out.Kind {
	case Success, Canceled:
		return
	case AuthRequired:
		c.notifier.Alert(c.title + ":\n" +
			"Authorization is required for using this script. This is one time action.\n" +
			"Now you will be redirected to the authorization page, where you'll need to approve request.\n" +
			"After confirmation, please close the page and reload.")
		c.notifier.OpenPage(Page{URL: out.RedirectURL, Body: string(out.Body)})
	case HTMLPage:
		c.notifier.Alert(c.title + ": Unexpected page received instead of polygon data.")
		c.notifier.OpenPage(Page{Body: string(out.Body)})
	case HTTPError:
		c.logger.Warn("directory request failed",
			zap.Int("status", out.Status),
			zap.Any("headers", out.Header),
			zap.ByteString("body", out.Body),
		)
		c.notifier.Alert(fmt.Sprintf("%s Error: unsupported status code - %d", c.title, out.Status))
	case Timeout:
		c.notifier.Alert(c.title + ": Sorry, request timeout!")
	case NetworkError:
		c.notifier.Alert(c.title + ": Sorry, request error!")
	case EmptyResponse:
		c.notifier.Alert(c.title + " Error: Response is empty!")
	}
}

// Task is an in-flight fetch.
type Task struct {
	done   chan struct{}
	out    Outcome
	cancel context.CancelFunc
}

// Start runs Fetch in the background.
func (c *Client) Start(ctx context.Context, url string) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(t.done)
		defer cancel()
		t.out = c.Fetch(ctx, url)
	}()
	return t
}

// Done is closed when the outcome is available.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the fetch completes.
func (t *Task) Wait() Outcome {
	<-t.done
	return t.out
}

// Cancel aborts the fetch; Wait then reports Canceled.
func (t *Task) Cancel() {
	t.cancel()
}

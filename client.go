package eventsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultRetryInterval is the reconnect delay used until the server
	// sends a retry field or the OnError hook overrides it.
	DefaultRetryInterval = time.Second

	// DefaultChunkSize is the response body read buffer size used when
	// Options.ChunkSize is not set.
	DefaultChunkSize = 4096

	// ContentTypeEventStream is the MIME type of SSE responses.
	ContentTypeEventStream = "text/event-stream"
)

const (
	headerAccept      = "Accept"
	headerLastEventID = "Last-Event-Id"
)

// ErrInvalidResponse is returned (wrapped) by the default OnOpen hook when
// the response status or content type does not describe an event stream.
var ErrInvalidResponse = errors.New("response is not an event stream")

// Options configures a single subscription started with Connect. The zero
// value is usable for a plain GET subscription, though without an OnMessage
// hook all messages are discarded.
type Options struct {
	// Method is the HTTP request method. Defaults to GET.
	Method string

	// Body is the request body, if any. A fresh reader is created for
	// every attempt so reconnects resend the full body.
	Body []byte

	// Headers is a fixed set of request headers added to every attempt.
	Headers http.Header

	// HeadersFunc, when set, takes precedence over Headers and is invoked
	// fresh before every attempt. It allows refreshing credentials
	// between reconnects. A returned error is treated like any other
	// connection failure and goes through OnError.
	HeadersFunc func() (http.Header, error)

	// Client issues the HTTP requests. Defaults to http.DefaultClient.
	Client *http.Client

	// OnOpen validates the response before the body is consumed.
	// Returning an error abandons the attempt and goes through OnError.
	// The default accepts 2xx responses with a text/event-stream content
	// type.
	OnOpen func(*http.Response) error

	// OnMessage is invoked synchronously once per dispatched message, in
	// stream order.
	OnMessage func(Message)

	// OnClose is invoked when the server closes the stream without error.
	// Returning a non-nil error turns the clean close into a retriable
	// failure.
	OnClose func() error

	// OnError is consulted on every retriable failure. The returned delay
	// overrides the session retry interval for the next attempt, a delay
	// of zero or less keeps the current interval. Returning a non-nil
	// fatal error stops the subscription and Connect returns that error.
	//
	// A nil OnError retries every failure with the session interval.
	OnError func(err error) (delay time.Duration, fatal error)

	// Visibility suspends the connection while the environment reports
	// itself hidden and reconnects once visible. Nil means always
	// visible.
	Visibility VisibilityMonitor

	// KeepAliveWhenHidden keeps the connection open regardless of the
	// Visibility state.
	KeepAliveWhenHidden bool

	// IDStore, when set, seeds the session's last event ID before the
	// first attempt and records every subsequent ID change, letting later
	// subscriptions to the same URL resume from it.
	IDStore *LastEventIDStore

	// ChunkSize overrides the response body read buffer size.
	ChunkSize int

	// Logger receives connection lifecycle logs. Nil discards them.
	Logger logrus.FieldLogger
}

// Connect subscribes to the SSE stream at url and blocks until the
// subscription terminates. It returns nil when the stream ends cleanly or
// ctx is cancelled, and the fatal error when OnError signals one. All other
// failures are retried after the session retry interval, which starts at
// DefaultRetryInterval and follows server sent retry fields.
//
// At most one request is in flight at a time. Each attempt resolves the
// header source anew, forces an Accept: text/event-stream header unless the
// caller supplied one and resends the last seen event ID so the server can
// resync the client.
func Connect(ctx context.Context, url string, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = nopLogger()
	}

	c := &conn{
		url:           url,
		opts:          opts,
		log:           log.WithField("url", url),
		retryInterval: DefaultRetryInterval,
	}
	if opts.IDStore != nil {
		c.lastEventID = opts.IDStore.Get(url)
	}
	return c.run(ctx)
}

// conn holds the state of one subscription. The retry interval and last
// event ID are the only values shared across attempts, they are mutated only
// by the single active attempt.
type conn struct {
	url  string
	opts Options
	log  logrus.FieldLogger

	retryInterval time.Duration
	lastEventID   string

	mu          sync.Mutex
	hiddenPause bool
}

// run is the subscription loop: wait out hidden periods, perform one attempt
// and decide between resolving, retrying and parking on visibility.
func (c *conn) run(ctx context.Context) error {
	var visCh <-chan bool
	cancelVis := func() {}
	if c.opts.Visibility != nil && !c.opts.KeepAliveWhenHidden {
		visCh, cancelVis = c.opts.Visibility.Subscribe()
	}
	defer cancelVis()

	for {
		if c.hiddenNow() {
			if !c.awaitVisible(ctx, visCh) {
				return nil
			}
		}

		log := c.log.WithField("attempt", uuid.NewString())
		log.Debug("connecting")

		attemptCtx, cancel := context.WithCancel(ctx)
		var watchDone chan struct{}
		if visCh != nil {
			watchDone = make(chan struct{})
			go c.watchVisibility(attemptCtx, cancel, visCh, watchDone)
		}

		err := c.attempt(attemptCtx, log)

		cancel()
		if watchDone != nil {
			<-watchDone
		}

		if err == nil {
			log.Debug("stream closed cleanly")
			return nil
		}
		if ctx.Err() != nil {
			// Cancelled by the caller, resolve silently.
			return nil
		}
		if c.takeHiddenPause() {
			// The attempt was aborted because the environment went
			// hidden. Not a failure, reconnect on visibility.
			log.Debug("paused while hidden")
			continue
		}

		delay := c.retryInterval
		if c.opts.OnError != nil {
			d, fatal := c.opts.OnError(err)
			if fatal != nil {
				log.WithError(fatal).Warn("subscription failed")
				return fatal
			}
			if d > 0 {
				delay = d
			}
		}
		if ctx.Err() != nil {
			// Cancelled during the hook, no retry.
			return nil
		}
		if c.hiddenNow() {
			// Hidden in the meantime, visibility recovery will
			// reconnect instead of a timer.
			continue
		}

		log.WithError(err).WithField("delay", delay).Info("reconnecting")
		if !c.sleep(ctx, delay, visCh) {
			return nil
		}
	}
}

// attempt performs one complete request/stream cycle.
func (c *conn) attempt(ctx context.Context, log logrus.FieldLogger) error {
	headers, err := c.resolveHeaders()
	if err != nil {
		return fmt.Errorf("resolving headers: %w", err)
	}

	method := c.opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(c.opts.Body) > 0 {
		body = bytes.NewReader(c.opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, body)
	if err != nil {
		return err
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if req.Header.Get(headerAccept) == "" {
		req.Header.Set(headerAccept, ContentTypeEventStream)
	}
	if c.lastEventID != "" {
		req.Header.Set(headerLastEventID, c.lastEventID)
	}

	client := c.opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	onOpen := c.opts.OnOpen
	if onOpen == nil {
		onOpen = defaultOnOpen
	}
	if err := onOpen(resp); err != nil {
		return err
	}
	log.WithField("status", resp.StatusCode).Debug("stream open")

	var dispatched int
	parser := &MessageParser{
		OnID: c.storeID,
		OnRetry: func(d time.Duration) {
			c.retryInterval = d
		},
		OnMessage: func(msg Message) {
			dispatched++
			if c.opts.OnMessage != nil {
				c.opts.OnMessage(msg)
			}
		},
	}
	splitter := NewLineSplitter(parser.Feed)

	size := c.opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			splitter.Feed(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	log.WithField("messages", dispatched).Debug("stream ended")

	if c.opts.OnClose != nil {
		if err := c.opts.OnClose(); err != nil {
			return err
		}
	}
	return nil
}

// watchVisibility aborts the in-flight attempt when the environment goes
// hidden. It owns the visibility channel only while the attempt runs, the
// run loop reads it between attempts.
func (c *conn) watchVisibility(ctx context.Context, cancel context.CancelFunc, visCh <-chan bool, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case hidden, ok := <-visCh:
			if !ok {
				return
			}
			if hidden {
				c.mu.Lock()
				c.hiddenPause = true
				c.mu.Unlock()
				cancel()
				return
			}
		}
	}
}

// awaitVisible blocks until the environment is visible again. It reports
// false when ctx is cancelled first.
func (c *conn) awaitVisible(ctx context.Context, visCh <-chan bool) bool {
	c.log.Debug("suspended while hidden")
	for {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-visCh:
			if !ok {
				return false
			}
			if !c.hiddenNow() {
				c.log.Debug("visible again")
				return true
			}
		}
	}
}

// sleep waits out the retry delay. It returns early when the visibility
// state changes, the run loop re-evaluates it, and reports false when ctx is
// cancelled.
func (c *conn) sleep(ctx context.Context, delay time.Duration, visCh <-chan bool) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-visCh:
		return true
	}
}

func (c *conn) hiddenNow() bool {
	return c.opts.Visibility != nil && !c.opts.KeepAliveWhenHidden && c.opts.Visibility.Hidden()
}

func (c *conn) takeHiddenPause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	paused := c.hiddenPause
	c.hiddenPause = false
	return paused
}

func (c *conn) resolveHeaders() (http.Header, error) {
	if c.opts.HeadersFunc != nil {
		return c.opts.HeadersFunc()
	}
	return c.opts.Headers, nil
}

// storeID records a last-event-id update, writing through to the resume
// store if one is attached.
func (c *conn) storeID(id string) {
	c.lastEventID = id
	if c.opts.IDStore != nil {
		c.opts.IDStore.Set(c.url, id)
	}
}

// defaultOnOpen accepts success responses carrying an event stream.
func defaultOnOpen(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %q", ErrInvalidResponse, resp.Status)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, ContentTypeEventStream) {
		return fmt.Errorf("%w: content type %q", ErrInvalidResponse, ct)
	}
	return nil
}

func nopLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

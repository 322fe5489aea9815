package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NERVsystems/geoquery/pkg/geoerr"
	"github.com/NERVsystems/geoquery/pkg/metrics"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	CloseTimeout   time.Duration
	Retry          RetryPolicy

	// ConnectRate limits new connections per second; zero means unlimited.
	ConnectRate  float64
	ConnectBurst int
}

// DefaultOptions returns the production timeouts: 15s connect, 30s per
// call attempt, 5s close, three attempts one second apart.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 15 * time.Second,
		CallTimeout:    30 * time.Second,
		CloseTimeout:   5 * time.Second,
		Retry:          DefaultRetryPolicy(),
		ConnectRate:    5,
		ConnectBurst:   10,
	}
}

// Client drives the Connect, Invoke, Close lifecycle against one Dialer.
// It is safe for concurrent use; each call to Connect yields an
// independent Handle.
type Client struct {
	dialer  Dialer
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// ClientOption configures optional Client collaborators.
type ClientOption func(*Client)

// WithMetrics records connect and invoke metrics on r.
func WithMetrics(r *metrics.Recorder) ClientOption {
	return func(c *Client) { c.metrics = r }
}

// NewClient creates a Client. Zero durations in opts fall back to the
// defaults.
func NewClient(dialer Dialer, opts Options, logger *slog.Logger, options ...ClientOption) *Client {
	def := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = def.CloseTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.ConnectRate > 0 {
		limit = rate.Limit(opts.ConnectRate)
	}
	burst := opts.ConnectBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		dialer:  dialer,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "remote"),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Options returns the effective options.
func (c *Client) Options() Options { return c.opts }

// Connect opens a session, initializes it and lists the host's tools, all
// within the connect timeout. A failed tool listing is tolerated: the
// handle is Ready with an unknown tool set.
func (c *Client) Connect(ctx context.Context) (*Handle, error) {
	h := newHandle()

	if err := c.limiter.Wait(ctx); err != nil {
		h.setState(StateFailed)
		c.metrics.IncConnectFailure()
		if cerr := geoerr.FromContext(ctx, "connect"); cerr != nil {
			return nil, cerr
		}
		return nil, geoerr.Connection(fmt.Errorf("rate limiter: %w", err))
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	start := time.Now()
	session, err := c.dial(dialCtx)
	if err != nil {
		h.setState(StateFailed)
		c.metrics.IncConnectFailure()
		c.logger.WarnContext(ctx, "connect failed", "error", err, "elapsed", time.Since(start))
		if cerr := geoerr.FromContext(ctx, "connect"); cerr != nil {
			return nil, cerr
		}
		return nil, geoerr.Connection(err)
	}
	h.session = session

	names, err := race(dialCtx, session.ListTools)
	if err != nil {
		c.logger.WarnContext(ctx, "tool listing failed, continuing with unknown tool set", "error", err)
	} else {
		h.setTools(names)
	}

	h.setState(StateReady)
	c.logger.DebugContext(ctx, "connected", "tools", len(names), "elapsed", time.Since(start))
	return h, nil
}

// dial races the dialer against ctx. A session that arrives after ctx is
// done is closed in the background.
func (c *Client) dial(ctx context.Context) (Session, error) {
	type result struct {
		s   Session
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("dial panic: %v", r)}
			}
		}()
		s, err := c.dialer.Dial(ctx)
		ch <- result{s: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.s == nil {
			return nil, errors.New("dialer returned no session")
		}
		return r.s, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				if err := r.s.Close(); err != nil {
					c.logger.Debug("closing late session", "error", err)
				}
			}
		}()
		return nil, fmt.Errorf("connect timed out: %w", ctx.Err())
	}
}

// Invoke calls tool with args. Each attempt has its own call timeout;
// transport failures and timeouts are retried per the retry policy. An
// error reply from the tool is returned at once as an application error
// carrying the host's message.
func (c *Client) Invoke(ctx context.Context, h *Handle, tool string, args map[string]any) (*Response, error) {
	if !h.Ready() {
		return nil, geoerr.New(geoerr.KindInternal, "invoke "+tool, geoerr.MsgInternal,
			fmt.Errorf("handle is %s", h.State()))
	}

	attempt := 0
	op := func() (*Response, error) {
		attempt++
		if attempt > 1 {
			c.metrics.IncRetry(tool)
		}
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		resp, err := race(callCtx, func(cctx context.Context) (*Response, error) {
			return h.session.CallTool(cctx, tool, args)
		})
		var pe *panicError
		switch {
		case errors.As(err, &pe):
			c.metrics.ObserveInvocation(tool, "panic")
			return nil, backoff.Permanent(geoerr.New(geoerr.KindInternal, "invoke "+tool, geoerr.MsgInternal, err))
		case err != nil:
			if cerr := geoerr.FromContext(ctx, "invoke "+tool); cerr != nil {
				return nil, backoff.Permanent(cerr)
			}
			c.metrics.ObserveInvocation(tool, "transport_error")
			c.logger.WarnContext(ctx, "tool call failed", "tool", tool, "attempt", attempt, "error", err)
			return nil, geoerr.Transient(tool, err)
		case resp == nil:
			c.metrics.ObserveInvocation(tool, "transport_error")
			return nil, geoerr.Transient(tool, errors.New("empty reply"))
		case resp.IsError:
			c.metrics.ObserveInvocation(tool, "application_error")
			return nil, backoff.Permanent(geoerr.Application(tool, resp.ErrorText()))
		}
		c.metrics.ObserveInvocation(tool, "ok")
		return resp, nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.InfoContext(ctx, "retrying tool call", "tool", tool, "attempt", attempt, "next_in", next)
	}

	resp, err := Retry(ctx, c.opts.Retry, op, notify)
	if err != nil {
		// backoff returns the bare context cause when canceled during a wait.
		var gerr *geoerr.Error
		if !errors.As(err, &gerr) {
			if cerr := geoerr.FromContext(ctx, "invoke "+tool); cerr != nil {
				err = cerr
			} else {
				err = geoerr.Transient(tool, err)
			}
		}
		if geoerr.KindOf(err) == geoerr.KindInvocationTransient {
			h.setState(StateFailed)
		}
		return nil, err
	}
	return resp, nil
}

// Close closes the handle's session once, bounded by the close timeout.
// Close errors are logged and swallowed. Calling Close again is a no-op.
func (c *Client) Close(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}
	h.closeOnce.Do(func() {
		if h.session != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CloseTimeout)
			defer cancel()
			_, err := race(closeCtx, func(context.Context) (struct{}, error) {
				return struct{}{}, h.session.Close()
			})
			if err != nil {
				c.logger.WarnContext(ctx, "close failed", "error", err)
			}
		}
		if h.State() != StateFailed {
			h.setState(StateClosed)
		}
	})
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// race runs fn in a goroutine and returns when it finishes or ctx is done,
// whichever comes first. Panics in fn become *panicError.
func race[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: &panicError{value: r}}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

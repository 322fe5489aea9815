// Package orchestrator runs a geospatial query end to end: select a remote
// tool, connect, invoke, normalize and close, streaming progress text to a
// status sink. Run never returns an error; every failure ends up in the
// ToolResult.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NERVsystems/geoquery/pkg/config"
	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/geoerr"
	"github.com/NERVsystems/geoquery/pkg/logging"
	"github.com/NERVsystems/geoquery/pkg/metrics"
	"github.com/NERVsystems/geoquery/pkg/normalize"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/NERVsystems/geoquery/pkg/remote"
	"github.com/NERVsystems/geoquery/pkg/status"
	"github.com/NERVsystems/geoquery/pkg/tools"
)

// Status texts shown to the user.
const (
	msgUnavailable = "Geospatial functionality is currently unavailable. Please check your configuration and try again."
)

func msgProcessing(subject string) string {
	return fmt.Sprintf("Processing geospatial query: %q. Connecting to mapping service...", subject)
}

func msgConnected(subject string) string {
	return fmt.Sprintf("Connected to mapping service. Processing %q...", subject)
}

func msgSuccess(place string) string {
	return "Successfully processed location query for: " + place
}

func msgFailure(err error) string {
	return "Mapping service error: " + geoerr.UserMessage(err)
}

// Remote is the connection lifecycle the orchestrator drives.
// *remote.Client implements it.
type Remote interface {
	Connect(ctx context.Context) (*remote.Handle, error)
	Invoke(ctx context.Context, h *remote.Handle, tool string, args map[string]any) (*remote.Response, error)
	Close(ctx context.Context, h *remote.Handle)
}

// Orchestrator is safe for concurrent use; runs share only the remote
// client, logger and metrics.
type Orchestrator struct {
	cfg      config.Config
	remote   Remote
	selector *tools.Selector
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time

	statusFlush time.Duration
}

const (
	statusQueue        = 16
	defaultStatusFlush = 100 * time.Millisecond
)

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

func WithSelector(s *tools.Selector) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.selector = s
		}
	}
}

// WithStatusFlush bounds how long a finished run waits for its status
// sink to take the remaining updates.
func WithStatusFlush(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.statusFlush = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator. rc may be nil when cfg is incomplete; runs
// then end with the unavailable result before any network call.
func New(cfg config.Config, rc Remote, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		remote:   rc,
		selector: tools.NewSelector(),
		logger:   slog.Default(),
		now:      time.Now,

		statusFlush: defaultStatusFlush,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	if len(o.cfg.Catalog) == 0 {
		o.cfg.Catalog = tools.DefaultCatalog()
	}
	return o
}

// RunText builds a query from free text and runs it. explicit overrides
// classification when non-empty.
func (o *Orchestrator) RunText(ctx context.Context, text string, explicit query.Type, sink status.Sink) ToolResult {
	q, err := query.FromText(text, explicit)
	if err != nil {
		t := explicit
		if t == "" {
			t = query.Classify(text)
		}
		return o.reject(ctx, text, t, err, sink)
	}
	return o.Run(ctx, q, sink)
}

// RunJSON decodes a query in its JSON form and runs it.
func (o *Orchestrator) RunJSON(ctx context.Context, data []byte, sink status.Sink) ToolResult {
	q, err := query.Decode(data)
	if err != nil {
		return o.reject(ctx, string(data), "", err, sink)
	}
	return o.Run(ctx, q, sink)
}

// Reject returns the failed result for input that was refused before it
// became a query, such as an unknown query type.
func (o *Orchestrator) Reject(ctx context.Context, input string, err error, sink status.Sink) ToolResult {
	return o.reject(ctx, input, "", err, sink)
}

// reject ends a run whose input never became a valid query.
func (o *Orchestrator) reject(ctx context.Context, input string, t query.Type, err error, sink status.Sink) ToolResult {
	sink, flush := o.dispatch(sink)
	defer flush()
	res := newResult(input, t, o.now()).failed(err)
	o.logger.InfoContext(ctx, "query rejected", "query_id", res.QueryID, "error", err)
	o.emit(ctx, sink, msgFailure(err))
	o.metrics.ObserveRun(string(t), string(res.ErrorKind))
	return res
}

// Run executes q. The remote session, once opened, is closed exactly once
// on every path, panics included.
func (o *Orchestrator) Run(ctx context.Context, q query.GeospatialQuery, sink status.Sink) (res ToolResult) {
	// Registered first so it runs after the panic handler's final status.
	sink, flush := o.dispatch(sink)
	defer flush()

	input := originalInput(q)
	res = newResult(input, q.Type(), o.now())

	// The logging handler picks request and query ids up from ctx.
	ctx = logging.WithQueryID(ctx, res.QueryID)
	logger := o.logger.With("query_type", q.Type())
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err := geoerr.New(geoerr.KindInternal, "run", geoerr.MsgInternal, fmt.Errorf("panic: %v", p))
			logger.ErrorContext(ctx, "run panicked", "panic", fmt.Sprint(p))
			o.emit(ctx, sink, msgFailure(err))
			res = res.failed(err)
		}
		outcome := "ok"
		if res.Error != "" {
			outcome = string(res.ErrorKind)
		}
		o.metrics.ObserveRun(string(q.Type()), outcome)
		logger.InfoContext(ctx, "run finished", "outcome", outcome, "tool", res.Tool, "elapsed", time.Since(start))
	}()

	if err := o.cfg.Validate(); err != nil || o.remote == nil {
		if err == nil {
			err = geoerr.Configuration(geoerr.MsgUnavailable, errors.New("no remote client"))
		}
		logger.WarnContext(ctx, "geospatial tools unavailable", "error", err)
		o.emit(ctx, sink, msgUnavailable)
		return res.failed(err)
	}

	if err := q.Validate(); err != nil {
		o.emit(ctx, sink, msgFailure(err))
		return res.failed(err)
	}
	subject := q.Subject()
	o.emit(ctx, sink, msgProcessing(subject))

	sel, err := o.selector.Select(q, o.cfg.Catalog)
	if err != nil {
		err = geoerr.NoTool(err)
		logger.InfoContext(ctx, "no tool in catalog", "catalog", o.cfg.Catalog)
		o.emit(ctx, sink, msgFailure(err))
		return res.failed(err)
	}
	if err := geoerr.FromContext(ctx, "select"); err != nil {
		o.emit(ctx, sink, msgFailure(err))
		return res.failed(err)
	}

	out, tool, err := o.execute(ctx, logger, q, sel, sink)
	res.Tool = tool
	if err != nil {
		if nerr := (*normalize.Error)(nil); errors.As(err, &nerr) {
			logger.WarnContext(ctx, "unexpected tool reply", "reason", nerr.Reason, "raw", nerr.Raw)
		}
		o.emit(ctx, sink, msgFailure(err))
		return res.failed(err)
	}

	loc := out.Location
	res.Location = &loc
	res.Route = out.Route
	if c, ok := loc.Coordinates(); ok {
		res.MapTarget = geo.NewMapTarget(c, loc.PlaceName)
	}
	if q.IncludeMap() {
		res.MapURL = out.MapURL
		if res.MapURL == "" && out.Route != nil {
			res.MapURL = geo.StaticRouteURL(out.Route.Geometry, o.cfg.MapboxToken)
		}
		if c, ok := loc.Coordinates(); ok && res.MapURL == "" {
			res.MapURL = geo.StaticMapURL(c, geo.DefaultZoom, o.cfg.MapboxToken)
		}
	}

	place := loc.PlaceName
	if place == "" {
		place = subject
	}
	o.emit(ctx, sink, msgSuccess(place))
	return res
}

// execute connects, invokes and normalizes. The deferred close runs before
// the caller emits the final status.
func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, q query.GeospatialQuery, sel tools.Selection, sink status.Sink) (normalize.Result, string, error) {
	phase := time.Now()
	h, err := o.remote.Connect(ctx)
	o.metrics.ObservePhase("connect", time.Since(phase))
	if err != nil {
		logger.WarnContext(ctx, "connect failed", "error", err)
		return normalize.Result{}, "", err
	}
	defer func() {
		closeStart := time.Now()
		o.remote.Close(ctx, h)
		o.metrics.ObservePhase("close", time.Since(closeStart))
	}()

	o.emit(ctx, sink, msgConnected(q.Subject()))

	// The catalog is a guess; the live tool list wins when the host sent one.
	if h.ToolsKnown() && !h.Has(sel.Tool) {
		live, err := o.selector.Select(q, h.Tools())
		if err != nil {
			logger.InfoContext(ctx, "selected tool not offered by host", "tool", sel.Tool, "host_tools", h.Tools())
			return normalize.Result{}, "", geoerr.NoTool(err)
		}
		logger.DebugContext(ctx, "reselected tool", "from", sel.Tool, "to", live.Tool)
		sel = live
	}

	if err := geoerr.FromContext(ctx, "invoke"); err != nil {
		return normalize.Result{}, sel.Tool, err
	}

	phase = time.Now()
	resp, err := o.remote.Invoke(ctx, h, sel.Tool, sel.Args)
	o.metrics.ObservePhase("invoke", time.Since(phase))
	if err != nil {
		logger.WarnContext(ctx, "tool call failed", "tool", sel.Tool, "error", err)
		return normalize.Result{}, sel.Tool, err
	}

	if err := geoerr.FromContext(ctx, "normalize"); err != nil {
		return normalize.Result{}, sel.Tool, err
	}

	out, err := normalize.Normalize(resp, q.Type())
	if err != nil {
		return normalize.Result{}, sel.Tool, geoerr.Normalization(err)
	}
	if out.Candidates > 1 {
		logger.DebugContext(ctx, "took top-ranked candidate", "candidates", out.Candidates)
	}
	return out, sel.Tool, nil
}

// dispatch puts sink behind a per-run queue so a slow sink cannot hold up
// the pipeline.
func (o *Orchestrator) dispatch(sink status.Sink) (status.Sink, func()) {
	if sink == nil {
		return nil, func() {}
	}
	d := status.NewDispatcher(sink, statusQueue, o.logger, o.metrics.IncStatusDropped)
	return d, func() {
		if !d.Close(o.statusFlush) {
			o.logger.Debug("status sink still busy after run", "wait", o.statusFlush)
		}
	}
}

func (o *Orchestrator) emit(ctx context.Context, sink status.Sink, text string) {
	status.Send(ctx, sink, text, o.logger)
}

func originalInput(q query.GeospatialQuery) string {
	b, err := q.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

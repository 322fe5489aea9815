// Package httpapi serves the query pipeline over HTTP: a JSON endpoint, a
// Server-Sent Events endpoint streaming status text, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/NERVsystems/geoquery/pkg/geoerr"
	"github.com/NERVsystems/geoquery/pkg/metrics"
	"github.com/NERVsystems/geoquery/pkg/orchestrator"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/NERVsystems/geoquery/pkg/status"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes = 64 << 10
	streamBuffer = 32
)

// API holds the handler dependencies.
type API struct {
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
	sink    status.Sink
	metrics *metrics.Recorder
	promH   http.Handler
}

type Option func(*API)

// WithStatusSink also sends every run's status text to sink.
func WithStatusSink(sink status.Sink) Option {
	return func(a *API) { a.sink = sink }
}

// WithMetrics counts dropped stream updates on r and serves h on /metrics.
func WithMetrics(r *metrics.Recorder, h http.Handler) Option {
	return func(a *API) {
		a.metrics = r
		a.promH = h
	}
}

// New returns the router.
func New(orch *orchestrator.Orchestrator, logger *slog.Logger, opts ...Option) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{orch: orch, logger: logger.With("component", "http")}
	for _, o := range opts {
		o(a)
	}

	r := chi.NewRouter()
	r.Use(Recover(a.logger))
	r.Use(RequestID())
	r.Use(Logging(a.logger))

	r.Get("/healthz", liveness)
	if a.promH != nil {
		r.Method(http.MethodGet, "/metrics", a.promH)
	}
	r.Post("/v1/query", a.handleQuery)
	r.Post("/v1/query/stream", a.handleStream)
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// streams last as long as a run
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// textRequest is the free-text body form. Any body without "text" is
// decoded as a typed query.
type textRequest struct {
	Text       *string `json:"text"`
	QueryType  string  `json:"queryType"`
	IncludeMap *bool   `json:"includeMap"`
}

// run executes the body as a query. Bodies refused up front still come
// back as a failed ToolResult.
func (a *API) run(ctx context.Context, body []byte, sink status.Sink) orchestrator.ToolResult {
	var tr textRequest
	if err := json.Unmarshal(body, &tr); err != nil || tr.Text == nil {
		return a.orch.RunJSON(ctx, body, sink)
	}

	explicit, err := query.ParseType(tr.QueryType)
	if err != nil {
		return a.orch.Reject(ctx, *tr.Text, err, sink)
	}
	q, err := query.FromText(*tr.Text, explicit)
	if err != nil {
		return a.orch.RunText(ctx, *tr.Text, explicit, sink)
	}
	if tr.IncludeMap != nil {
		q = q.WithIncludeMap(*tr.IncludeMap)
	}
	return a.orch.Run(ctx, q, sink)
}

func (a *API) runSink(s status.Sink) status.Sink {
	if a.sink == nil {
		return s
	}
	return status.Multi{s, a.sink}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	res := a.run(r.Context(), body, a.runSink(nil))
	writeJSON(w, statusFor(res), res)
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	updates := status.NewChannel(streamBuffer, a.metrics.IncStatusDropped)
	done := make(chan orchestrator.ToolResult, 1)
	go func() {
		defer updates.Close()
		done <- a.run(r.Context(), body, a.runSink(updates))
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for text := range updates.C() {
		writeEvent(w, "status", map[string]string{"text": text})
		flusher.Flush()
	}

	writeEvent(w, "result", <-done)
	flusher.Flush()
}

// statusFor maps a result to an HTTP status. The body is always the
// ToolResult.
func statusFor(res orchestrator.ToolResult) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case geoerr.KindValidation:
		return http.StatusBadRequest
	case geoerr.KindNoTool:
		return http.StatusUnprocessableEntity
	case geoerr.KindConfiguration:
		return http.StatusServiceUnavailable
	case geoerr.KindConnection, geoerr.KindInvocationTransient,
		geoerr.KindInvocationApplication, geoerr.KindNormalization:
		return http.StatusBadGateway
	case geoerr.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		b, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeEvent(w io.Writer, event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{"error":"encode failed"}`)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

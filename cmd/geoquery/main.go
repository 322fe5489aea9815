package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NERVsystems/geoquery/pkg/config"
	"github.com/NERVsystems/geoquery/pkg/geo"
	"github.com/NERVsystems/geoquery/pkg/httpapi"
	"github.com/NERVsystems/geoquery/pkg/logging"
	"github.com/NERVsystems/geoquery/pkg/metrics"
	"github.com/NERVsystems/geoquery/pkg/orchestrator"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/NERVsystems/geoquery/pkg/remote"
	"github.com/NERVsystems/geoquery/pkg/server"
	"github.com/NERVsystems/geoquery/pkg/status"
	"github.com/NERVsystems/geoquery/pkg/version"
	"github.com/spf13/cobra"
)

// dialerFor builds the tool host dialer; tests swap it for an in-process
// host.
var dialerFor = func(endpoint string) remote.Dialer {
	return remote.NewMCPDialer(endpoint)
}

type globalFlags struct {
	debug   bool
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          version.Name,
		Short:        "Geospatial query orchestration over a remote MCP mapping host",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Read settings from this file when it exists")

	root.AddCommand(
		newServeCmd(g),
		newMCPCmd(g),
		newQueryCmd(g),
		newDecodeRouteCmd(),
		newGenerateConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the process logger.
func setup(g *globalFlags, logOut io.Writer) (config.Config, *slog.Logger) {
	cfg := config.Load(g.envFile)
	level := cfg.LogLevel
	if g.debug {
		level = "debug"
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Console: cfg.LogConsole,
		Service: version.Name,
	}, logOut)
	slog.SetDefault(logger)
	return cfg, logger
}

// newOrchestrator wires the remote client. With incomplete credentials the
// orchestrator gets no remote and every run ends as unavailable.
func newOrchestrator(cfg config.Config, logger *slog.Logger, rec *metrics.Recorder) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(rec),
	}

	if err := cfg.Validate(); err != nil {
		logger.Warn("geospatial tools unavailable", append(cfg.LogFields(), "error", err)...)
		return orchestrator.New(cfg, nil, opts...)
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		logger.Warn("invalid tool host endpoint", append(cfg.LogFields(), "error", err)...)
		return orchestrator.New(cfg, nil, opts...)
	}

	logger.Info("tool host configured", cfg.LogFields()...)
	rc := remote.NewClient(dialerFor(endpoint), cfg.RemoteOptions(), logger, remote.WithMetrics(rec))
	return orchestrator.New(cfg, rc, opts...)
}

// statusPublisher connects the Redis fan-out sink when REDIS_ADDR is set.
func statusPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger, rec *metrics.Recorder) *status.Publisher {
	if cfg.RedisAddr == "" {
		return nil
	}
	pub, err := status.NewPublisher(ctx, cfg.RedisAddr, cfg.StatusChannel, logger,
		status.WithDropHook(rec.IncStatusDropped))
	if err != nil {
		logger.Warn("status publishing disabled", "redis", cfg.RedisAddr, "error", err)
		return nil
	}
	logger.Info("publishing status updates", "redis", cfg.RedisAddr, "channel", pub.Channel())
	return pub
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger := setup(g, cmd.ErrOrStderr())
			if addr != "" {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var apiOpts []httpapi.Option
			var rec *metrics.Recorder
			if cfg.MetricsEnabled {
				p := metrics.NewProvider(version.BuildVersion, version.BuildCommit)
				rec = metrics.NewRecorder(p.Registerer())
				apiOpts = append(apiOpts, httpapi.WithMetrics(rec, p.Handler()))
			}
			if pub := statusPublisher(ctx, cfg, logger, rec); pub != nil {
				defer func() { _ = pub.Close(context.Background()) }()
				apiOpts = append(apiOpts, httpapi.WithStatusSink(pub))
			}

			h := httpapi.New(newOrchestrator(cfg, logger, rec), logger, apiOpts...)
			return httpapi.Serve(ctx, cfg.Addr, h, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides ADDR)")
	return cmd
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout belongs to the MCP transport
			cfg, logger := setup(g, os.Stderr)

			var opts []server.Option
			if pub := statusPublisher(cmd.Context(), cfg, logger, nil); pub != nil {
				defer func() { _ = pub.Close(context.Background()) }()
				opts = append(opts, server.WithStatusSink(pub))
			}

			srv, err := server.NewServer(newOrchestrator(cfg, logger, nil), logger, opts...)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			logger.Info("server initialized, waiting for requests")
			return srv.Run()
		},
	}
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	var (
		queryType string
		noMap     bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one query; status goes to stderr and the result JSON to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, err := query.ParseType(queryType)
			if err != nil {
				return err
			}
			cfg, logger := setup(g, cmd.ErrOrStderr())
			orch := newOrchestrator(cfg, logger, nil)

			stderr := cmd.ErrOrStderr()
			sink := status.Func(func(_ context.Context, text string) {
				fmt.Fprintln(stderr, text)
			})

			ctx := logging.WithRequestID(cmd.Context(), "")
			text := strings.Join(args, " ")
			var res orchestrator.ToolResult
			if q, err := query.FromText(text, explicit); err == nil {
				res = orch.Run(ctx, q.WithIncludeMap(!noMap), sink)
			} else {
				res = orch.RunText(ctx, text, explicit, sink)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if !res.OK() {
				return fmt.Errorf("query failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queryType, "type", "", "Query type instead of classifying the text")
	cmd.Flags().BoolVar(&noMap, "no-map", false, "Do not include a map URL")
	return cmd
}

func newDecodeRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-route <polyline>",
		Short: "Decode an encoded route polyline into coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points := geo.DecodePolyline(args[0])
			if len(points) == 0 {
				return fmt.Errorf("no points in polyline %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(points)
		},
	}
}

func newGenerateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config <path>",
		Short: "Write or update a Claude Desktop client config that runs this binary as an MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateClientConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

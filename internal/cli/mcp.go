package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/events"
	psmcp "github.com/ppiankov/promptspeak/internal/mcp"
	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

var (
	mcpAgent         string
	mcpMetricsAddr   string
	mcpPubSubProject string
	mcpPubSubTopic   string
	mcpWatch         bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAgent, "agent", "", "Agent id for governance checks (env "+envAgentID+")")
	mcpCmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	mcpCmd.Flags().StringVar(&mcpPubSubProject, "pubsub-project", "", "Google Cloud project for event publishing (env "+envPubSubProject+")")
	mcpCmd.Flags().StringVar(&mcpPubSubTopic, "pubsub-topic", "promptspeak-events", "Pub/Sub topic for governance events")
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", true, "Reload the policy when the file changes")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server on stdio",
	Long: `Starts an MCP server exposing PromptSpeak governance checks as tools.

Tools:
  promptspeak_check        Evaluate a proposed tool call
  promptspeak_pending      List holds awaiting resolution
  promptspeak_resolve      Approve or deny a hold
  promptspeak_reset_agent  Clear an agent's breaker and baseline`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewMetrics()
	sinks := []events.Emitter{events.NewLogEmitter(logger)}

	project := firstNonEmpty(mcpPubSubProject, os.Getenv(envPubSubProject))
	if project != "" {
		pub, err := events.NewPubSubEmitter(ctx, project, mcpPubSubTopic)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		sinks = append(sinks, pub)
		logger.Info("publishing governance events",
			zap.String("project", project),
			zap.String("topic", mcpPubSubTopic))
	}

	srv, err := psmcp.New(psmcp.Config{
		PolicyPath: policyPath,
		AgentID:    firstNonEmpty(mcpAgent, os.Getenv(envAgentID)),
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     telemetry.Tracer(nil),
		Sink:       events.NewMultiEmitter(sinks...),
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	if mcpMetricsAddr != "" {
		stopMetrics := serveMetrics(mcpMetricsAddr, metrics.Handler())
		defer stopMetrics()
	}

	if mcpWatch {
		path := firstNonEmpty(policyPath, policy.DefaultPath())
		reloader, err := policy.NewReloader([]string{path}, srv.Reload, logger)
		if err != nil {
			return err
		}
		if len(reloader.Paths()) > 0 {
			go func() { _ = reloader.Run(ctx) }()
		}
	}

	logger.Info("mcp server starting",
		zap.String("version", version),
		zap.String("policy_hash", srv.PolicyHash()))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics starts a metrics listener and returns a shutdown func.
func serveMetrics(addr string, h http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

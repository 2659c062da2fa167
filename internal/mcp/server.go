// Package mcp exposes the governance pipeline as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/alert"
	"github.com/ppiankov/promptspeak/internal/events"
	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

// Version is reported in the MCP implementation info.
var Version = "dev"

// Config holds MCP server configuration.
type Config struct {
	PolicyPath string
	AgentID    string
	Logger     *zap.Logger
	Metrics    *telemetry.Metrics
	Tracer     trace.Tracer
	// Sink receives every governance event in addition to configured alerts.
	Sink events.Emitter
	// GatekeeperOptions are appended after the policy-derived options.
	GatekeeperOptions []gatekeeper.Option
}

// Server wraps the MCP SDK server with PromptSpeak governance.
type Server struct {
	mcpServer  *mcpsdk.Server
	gk         *gatekeeper.Gatekeeper
	sink       events.Emitter
	log        *zap.Logger
	metrics    *telemetry.Metrics
	policyPath string
	agentID    string

	mu         sync.RWMutex
	eval       *policy.Evaluator
	policyCfg  *policy.PolicyConfig
	policyHash string
	// dispatchers holds every dispatcher built so far; replaced ones may
	// still be delivering when Close runs.
	dispatchers []*alert.Dispatcher
}

// New creates an MCP server with loaded policy and registered tools.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	policyCfg, policyHash, err := policy.LoadConfigWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy config: %w", err)
	}

	classifier, err := policyCfg.Classifier()
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	opts := append([]gatekeeper.Option{gatekeeper.WithLogger(log)}, cfg.GatekeeperOptions...)
	gk, err := policyCfg.NewGatekeeper(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gatekeeper: %w", err)
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = policyCfg.AgentID
	}
	if agentID == "" {
		agentID = identity.NewAgentID(identity.MiddlewareAgentPrefix)
	}

	s := &Server{
		gk:         gk,
		sink:       cfg.Sink,
		log:        log,
		metrics:    cfg.Metrics,
		policyPath: cfg.PolicyPath,
		agentID:    agentID,
		policyCfg:  policyCfg,
		policyHash: policyHash,
		eval: &policy.Evaluator{
			Engine:     gk,
			Classifier: classifier,
			Logger:     log,
			Tracer:     cfg.Tracer,
			Metrics:    cfg.Metrics,
			Surface:    telemetry.SurfaceMCP,
		},
	}
	s.eval.Sink = s.newSink(policyCfg, policyHash)

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "promptspeak",
			Version: Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// newSink builds the event sink for one policy generation. Each
// generation gets its own dispatcher so a running dispatcher is never
// mutated. Callers that share s must hold s.mu.
func (s *Server) newSink(cfg *policy.PolicyConfig, hash string) events.Emitter {
	var sinks []events.Emitter
	if s.sink != nil {
		sinks = append(sinks, s.sink)
	}
	if d := alert.NewDispatcher(cfg.Alerts).WithLogger(s.log).WithPolicyHash(hash); d != nil {
		s.dispatchers = append(s.dispatchers, d)
		sinks = append(sinks, d)
	}
	return events.NewMultiEmitter(sinks...)
}

// Reload re-reads the policy file and applies it to the running gatekeeper.
// Rules, classifier and alert targets all follow the new file.
func (s *Server) Reload() error {
	cfg, hash, err := policy.LoadConfigWithHash(s.policyPath)
	if err != nil {
		return err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}
	s.gk.SetExecutionControlConfig(cfg.ExecutionControl())
	s.gk.SetRules(cfg.Rules())

	s.mu.Lock()
	s.policyCfg = cfg
	s.policyHash = hash
	eval := *s.eval
	eval.Classifier = classifier
	eval.Sink = s.newSink(cfg, hash)
	s.eval = &eval
	s.mu.Unlock()

	s.log.Info("policy applied", zap.String("policy_hash", hash), zap.String("mode", string(cfg.Mode)))
	return nil
}

func (s *Server) evaluator() (*policy.Evaluator, *policy.PolicyConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eval, s.policyCfg
}

// PolicyHash returns the hash of the active policy file.
func (s *Server) PolicyHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyHash
}

// Gatekeeper returns the engine behind the server.
func (s *Server) Gatekeeper() *gatekeeper.Gatekeeper {
	return s.gk
}

// Close stops the gatekeeper, waits for alert delivery and closes the hold store.
func (s *Server) Close() error {
	err := s.gk.Close()
	s.mu.RLock()
	dispatchers := append([]*alert.Dispatcher(nil), s.dispatchers...)
	s.mu.RUnlock()
	for _, d := range dispatchers {
		d.Wait()
	}
	return err
}

// registerTools adds all governance tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "promptspeak_check",
		Description: "Evaluate a proposed tool call through PromptSpeak governance without executing it. Returns allowed, blocked or held with the reason.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "promptspeak_pending",
		Description: "List pending hold requests awaiting resolution.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "promptspeak_resolve",
		Description: "Approve or deny a pending hold request. An approved hold lets the next identical call from the same agent through.",
	}, s.handleResolve)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "promptspeak_reset_agent",
		Description: "Clear an agent's drift baseline and close its circuit breaker.",
	}, s.handleResetAgent)
}

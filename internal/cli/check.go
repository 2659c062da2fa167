package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/promptspeak/internal/alert"
	"github.com/ppiankov/promptspeak/internal/events"
	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

var (
	checkArgs        string
	checkAgent       string
	checkFrame       string
	checkNoSensitive bool
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkArgs, "args", "{}", "Tool arguments as a JSON object")
	checkCmd.Flags().StringVar(&checkAgent, "agent", "", "Agent id (env "+envAgentID+", default from policy)")
	checkCmd.Flags().StringVar(&checkFrame, "frame", "", "Frame sent to the engine (default from policy)")
	checkCmd.Flags().BoolVar(&checkNoSensitive, "no-sensitive", false, "Skip the sensitive-data pre-check")
}

var checkCmd = &cobra.Command{
	Use:   "check <tool>",
	Short: "Evaluate one tool call against the policy",
	Long:  "Runs a single tool call through the decision core and prints the resulting governance event. Exits non-zero when the call is not allowed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, hash, err := policy.LoadConfigWithHash(policyPath)
	if err != nil {
		return err
	}

	var callArgs map[string]any
	if err := json.Unmarshal([]byte(checkArgs), &callArgs); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}
	gk, err := cfg.NewGatekeeper(
		gatekeeper.WithLogger(logger),
		gatekeeper.WithCleanupInterval(0),
	)
	if err != nil {
		return err
	}
	defer func() { _ = gk.Close() }()

	sinks := []events.Emitter{events.NewLogEmitter(logger)}
	if d := alert.NewDispatcher(cfg.Alerts); d != nil {
		d = d.WithLogger(logger).WithPolicyHash(hash)
		defer d.Wait()
		sinks = append(sinks, d)
	}

	eval := &policy.Evaluator{
		Engine:     gk,
		Classifier: classifier,
		Sink:       events.NewMultiEmitter(sinks...),
		Logger:     logger,
		Surface:    telemetry.SurfaceCLI,
	}
	ev := eval.EvaluateCall(cmd.Context(), policy.Call{
		Tool:           args[0],
		Arguments:      callArgs,
		AgentID:        resolveAgentID(checkAgent, cfg),
		Frame:          firstNonEmpty(checkFrame, cfg.Frame, model.DefaultFrame),
		SensitiveCheck: cfg.SensitiveData && !checkNoSensitive,
		EventPrefix:    identity.CLIEventPrefix,
	})

	if err := writeJSON(cmd.OutOrStdout(), ev); err != nil {
		return err
	}
	if ev.Decision != model.Allowed {
		return fmt.Errorf("tool %q %s: %s", ev.Tool, ev.Decision, ev.Reason)
	}
	return nil
}

// resolveAgentID picks the flag value, then the environment, then the
// policy, then a generated id.
func resolveAgentID(flag string, cfg *policy.PolicyConfig) string {
	if id := firstNonEmpty(flag, os.Getenv(envAgentID), cfg.AgentID); id != "" {
		return id
	}
	return identity.NewAgentID(identity.MiddlewareAgentPrefix)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/policy"
)

var (
	holdsStatus     string
	holdsApproveTTL time.Duration
)

func init() {
	rootCmd.AddCommand(holdsCmd)
	holdsCmd.AddCommand(holdsListCmd, holdsApproveCmd, holdsDenyCmd)
	holdsListCmd.Flags().StringVar(&holdsStatus, "status", string(model.HoldPending), "Hold status to list (pending|approved|denied|consumed|expired)")
	holdsApproveCmd.Flags().DurationVar(&holdsApproveTTL, "duration", gatekeeper.DefaultApprovalTTL, "How long the approval may be consumed")
}

var holdsCmd = &cobra.Command{
	Use:   "holds",
	Short: "Inspect and resolve held tool calls",
	Long:  "Operates on the hold store named by the policy. Only the file and sqlite drivers are shared across processes.",
}

var holdsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List holds by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := parseHoldStatus(holdsStatus)
		if err != nil {
			return err
		}
		return withHoldStore(func(store gatekeeper.HoldStore) error {
			holds, err := store.List(cmd.Context(), status)
			if err != nil {
				return err
			}
			if holds == nil {
				holds = []model.HoldRequest{}
			}
			return writeJSON(cmd.OutOrStdout(), holds)
		})
	},
}

var holdsApproveCmd = &cobra.Command{
	Use:   "approve <hold-id>",
	Short: "Approve a pending hold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if holdsApproveTTL <= 0 {
			return fmt.Errorf("--duration must be positive")
		}
		return resolveHold(cmd, args[0], model.HoldApproved, holdsApproveTTL)
	},
}

var holdsDenyCmd = &cobra.Command{
	Use:   "deny <hold-id>",
	Short: "Deny a pending hold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveHold(cmd, args[0], model.HoldDenied, 0)
	},
}

func resolveHold(cmd *cobra.Command, id string, status model.HoldStatus, ttl time.Duration) error {
	return withHoldStore(func(store gatekeeper.HoldStore) error {
		h, err := store.Resolve(cmd.Context(), id, status, ttl, time.Now())
		if err != nil {
			return fmt.Errorf("resolve hold %s: %w", id, err)
		}
		logger.Info("hold resolved",
			zap.String("hold_id", h.HoldID),
			zap.String("agent_id", h.AgentID),
			zap.String("tool", h.Tool),
			zap.String("status", string(h.Status)))
		return writeJSON(cmd.OutOrStdout(), h)
	})
}

func withHoldStore(fn func(gatekeeper.HoldStore) error) error {
	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return err
	}
	if cfg.Holds.Driver == "" || cfg.Holds.Driver == policy.HoldDriverMemory {
		return fmt.Errorf("hold driver %q is not shared across processes; set holds.driver to file or sqlite", policy.HoldDriverMemory)
	}
	store, err := cfg.OpenHoldStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func parseHoldStatus(s string) (model.HoldStatus, error) {
	switch st := model.HoldStatus(s); st {
	case model.HoldPending, model.HoldApproved, model.HoldDenied, model.HoldConsumed, model.HoldExpired:
		return st, nil
	default:
		return "", fmt.Errorf("unknown hold status %q", s)
	}
}

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Environment variables read when the matching flag is unset.
const (
	envPolicy        = "PROMPTSPEAK_POLICY"
	envAgentID       = "PROMPTSPEAK_AGENT_ID"
	envPubSubProject = "PROMPTSPEAK_PUBSUB_PROJECT"
	envLogLevel      = "PROMPTSPEAK_LOG_LEVEL"
)

var (
	policyPath string
	logLevel   string
	envFile    string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "promptspeak",
	Short:         "Governance for AI agent tool calls",
	Long:          "Intercepts tool calls proposed by AI agents and decides whether each one is allowed, blocked or held for review.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(envFile); err != nil {
			return err
		}
		if policyPath == "" {
			policyPath = os.Getenv(envPolicy)
		}
		if !cmd.Flags().Changed("log-level") {
			if v := os.Getenv(envLogLevel); v != "" {
				logLevel = v
			}
		}
		l, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to policy YAML (default ~/.promptspeak/policy.yaml, env "+envPolicy+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before flags are resolved; missing file is ignored")
}

// loadEnv loads path into the process environment without overriding
// variables that are already set.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

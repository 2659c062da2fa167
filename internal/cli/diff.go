package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVar(&diffFormat, "format", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-policy> <new-policy>",
	Short: "Compare two policy files",
	Long:  "Loads both policies with defaults applied and reports changed settings, tool rules, agents and alert targets. Changes that widen what agents may do are marked looser.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldCfg, err := policy.LoadConfig(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		newCfg, err := policy.LoadConfig(args[1])
		if err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}

		r := policydiff.Diff(oldCfg, newCfg)
		r.OldPath, r.NewPath = args[0], args[1]
		switch diffFormat {
		case "json":
			return writeJSON(cmd.OutOrStdout(), r)
		case "text", "":
			_, err := fmt.Fprint(cmd.OutOrStdout(), policydiff.FormatText(r))
			return err
		default:
			return fmt.Errorf("unknown format %q: use text or json", diffFormat)
		}
	},
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/redact"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Scan text for sensitive data",
	Long:  "Runs the sensitive-data classifier over the argument, or stdin when no argument is given, and prints every match with the redacted text.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

type scanResult struct {
	Sensitive bool           `json:"sensitive"`
	Matches   []redact.Match `json:"matches"`
	Redacted  string         `json:"redacted"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\n")
	}

	matches := classifier.Scan(text)
	if matches == nil {
		matches = []redact.Match{}
	}
	return writeJSON(cmd.OutOrStdout(), scanResult{
		Sensitive: len(matches) > 0,
		Matches:   matches,
		Redacted:  redactMatches(text, matches),
	})
}

// redactMatches replaces each match span with its type marker. Matches
// arrive sorted by position; overlapping spans keep the first.
func redactMatches(text string, matches []redact.Match) string {
	var b strings.Builder
	pos := 0
	for _, m := range matches {
		if m.Start < pos || m.End > len(text) {
			continue
		}
		b.WriteString(text[pos:m.Start])
		b.WriteString("[" + string(m.Type) + "]")
		pos = m.End
	}
	b.WriteString(text[pos:])
	return b.String()
}

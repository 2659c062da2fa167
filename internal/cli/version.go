package cli

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	psmcp "github.com/ppiankov/promptspeak/internal/mcp"
)

// version is overridden at build time with -ldflags "-X ...cli.version=".
var version = "0.1.0"

func init() {
	psmcp.Version = version
	rootCmd.Version = version
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), buildInfo())
	},
}

func buildInfo() map[string]string {
	info := map[string]string{
		"name":    "promptspeak",
		"version": version,
		"go":      runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info["commit"] = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				info["dirty"] = s.Value
			}
		}
	}
	return info
}

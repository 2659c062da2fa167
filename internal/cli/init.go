package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/promptspeak/internal/policy"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.promptspeak)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing policy file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default policy file",
	Long: `Creates the config directory and a commented policy.yaml.

The file is written to ~/.promptspeak/policy.yaml unless --dir is given.
Existing files are kept unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".promptspeak")
	}

	path := filepath.Join(dir, "policy.yaml")
	wrote, err := writeIfMissing(path, policy.DefaultConfigYAML())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintf(out, "Created %s\n", path)
	} else {
		fmt.Fprintf(out, "%s already exists (use --force to overwrite)\n", path)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Try:")
	fmt.Fprintf(out, "  promptspeak check --policy %s shell_exec --args '{\"cmd\":\"ls\"}'\n", path)
	return nil
}

// writeIfMissing creates path with content. Without --force an existing
// file is left alone and false is returned.
func writeIfMissing(path, content string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if initForce {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, f.Close()
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"ariadne/internal/config"

	"github.com/spf13/cobra"
)

// seedContext is the initial ambient document. ariadne owns only the
// working-state section; the rest belongs to the user.
const seedContext = `# Project Context

Edit freely. ariadne owns only the "## Working State" section below and
rewrites it in place; everything else in this document is yours.

## Working State

## Notes
`

// initCmd scaffolds the .ariadne state directory
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ariadne in the current workspace",
	Long: `Creates the .ariadne/ state directory:

  .ariadne/config.yaml   configuration (defaults, edit as needed)
  .ariadne/context.md    ambient context document with the working-state section
  .ariadne/checkpoints/  immutable checkpoint records
  .ariadne/logs/         CLI logs

Run once per workspace. Re-running is safe; existing files are kept.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	fmt.Printf("Initializing ariadne in %s\n", workspace)

	dirs := []string{
		filepath.Join(workspace, config.DirName),
		cfg.CheckpointDir(workspace),
		cfg.LogDir(workspace),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	cfgPath := config.Path(workspace)
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("  %s exists, kept\n", relPath(cfgPath))
	} else {
		if err := cfg.Save(workspace); err != nil {
			return err
		}
		fmt.Printf("  ✓ %s\n", relPath(cfgPath))
	}

	ctxPath := cfg.AmbientPath(workspace)
	if _, err := os.Stat(ctxPath); err == nil {
		fmt.Printf("  %s exists, kept\n", relPath(ctxPath))
	} else {
		if err := os.WriteFile(ctxPath, []byte(seedContext), 0644); err != nil {
			return fmt.Errorf("failed to write context document: %w", err)
		}
		fmt.Printf("  ✓ %s\n", relPath(ctxPath))
	}

	initialized = true

	fmt.Println()
	fmt.Println("Ready. Try:")
	fmt.Println(`  ariadne checkpoint "starting out" --task "describe the task"`)
	fmt.Println("  ariadne resume")
	return nil
}

// relPath renders a path relative to the workspace for display.
func relPath(path string) string {
	rel, err := filepath.Rel(workspace, path)
	if err != nil {
		return path
	}
	return rel
}

package main

import (
	"fmt"

	"ariadne/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd inspects and validates ariadne configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate ariadne configuration",
	Long: `Configuration lives in .ariadne/config.yaml. 'show' prints the
effective configuration after defaults and environment overrides
(ARIADNE_KNOWLEDGE_COMMAND, ARIADNE_LOG_LEVEL); 'validate' checks it
for setup errors.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for setup errors",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Printf("# %s\n", config.Path(workspace))
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	fmt.Println("✓ config valid")
	return nil
}

func init() {
	configCmd.AddCommand(configShowCmd, configValidateCmd)
}

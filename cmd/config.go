package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/volition/core/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Show and validate the effective configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Print the configuration after defaults, file and environment overrides are applied.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long:  `Load the configuration and report whether it passes validation.`,
	RunE:  runConfigValidate,
}

var (
	configPath string
	configJSON bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	configShowCmd.Flags().BoolVar(&configJSON, "json", false, "Output the configuration as JSON")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	manager := config.NewManager(configPath)
	if err := manager.Load(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if configJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(manager.Get())
	}

	encoded, err := yaml.Marshal(manager.Get())
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(encoded)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	manager := config.NewManager(configPath)
	if err := manager.Load(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
	return nil
}

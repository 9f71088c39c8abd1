package cli

import (
	"fmt"
	"os"

	"github.com/harun/docmcp/internal/config"
	"github.com/spf13/cobra"
)

var (
	configureRoot      string
	configureTransport string
	configureForce     bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file with default values, adjusted by the flags.
Existing files are kept unless --force is given.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureRoot, "root", "", "documents root directory")
	configureCmd.Flags().StringVar(&configureTransport, "transport", "", "transport: stdio, http or gateway")
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing configuration file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if configureRoot != "" {
		cfg.Storage.Root = configureRoot
	}
	if configureTransport != "" {
		cfg.Server.Transport = configureTransport
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs[0])
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration saved to: %s\n", configPath)
	cmd.Println("You can now start docmcp with: docmcp serve")

	return nil
}

package cli

import (
	"fmt"

	"github.com/harun/docmcp/internal/config"
	"github.com/harun/docmcp/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	serveTransport string
	serveRoot      string
	serveHost      string
	servePort      int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve document operations",
	Long: `Serve document operations in the foreground.

Transports:
  stdio    MCP over stdin/stdout (default)
  http     MCP over streamable HTTP at /mcp
  gateway  websocket and HTTP JSON-RPC gateway at /ws and /rpc

The process runs until it receives SIGINT or SIGTERM, or until the stdio
client closes its end.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "transport: stdio, http or gateway (overrides config)")
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "documents root directory (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host for http and gateway (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "listen port for http and gateway (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyServeFlags(cfg)

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs[0])
	}

	if rec, running := daemon.OpenPIDFile(cfg.DataDir).Running(); running {
		return fmt.Errorf("%w (PID %d, %s transport)", daemon.ErrAlreadyRunning, rec.PID, rec.Transport)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		_ = d.Stop()
		return err
	}

	d.Wait()
	return nil
}

func applyServeFlags(cfg *config.Config) {
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveRoot != "" {
		cfg.Storage.Root = serveRoot
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort >= 0 {
		cfg.Server.Port = servePort
	}
}

package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/docmcp/internal/daemon"
	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running docmcp server",
	Long: `Stop a running docmcp server gracefully.
Sends SIGTERM so open sessions are released, then waits. A server still
alive after the timeout is killed; uncommitted session changes are lost.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "how long to wait for the server to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	pf := daemon.OpenPIDFile(cfg.DataDir)

	pid, err := stopDaemon(pf)
	if err != nil {
		return err
	}

	if waitForExit(pid, stopTimeout) {
		_ = pf.Release(pid)
		cmd.Println("Server stopped successfully")
		return nil
	}

	cmd.Printf("Server did not stop within %s, sending SIGKILL...\n", stopTimeout)
	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return err
	}
	_ = pf.Release(pid)
	cmd.Println("Server killed")
	return nil
}

// stopDaemon sends SIGTERM to the process recorded in pf. A record whose
// process is gone is removed.
func stopDaemon(pf *daemon.PIDFile) (int, error) {
	rec, err := pf.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("server is not running (no PID file at %s)", pf.Path())
		}
		return 0, err
	}
	if !daemon.ProcessAlive(rec.PID) {
		_ = pf.Remove()
		return 0, fmt.Errorf("server is not running (removed stale PID file for %d)", rec.PID)
	}
	return rec.PID, signalProcess(rec.PID, syscall.SIGTERM)
}

func signalProcess(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send %s: %w", sig, err)
	}
	return nil
}

// waitForExit polls until pid is gone or timeout elapses.
func waitForExit(pid int, timeout time.Duration) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		if !daemon.ProcessAlive(pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return !daemon.ProcessAlive(pid)
		}
	}
}

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/harun/docmcp/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show whether a docmcp server is running for the configured data directory,
and if so which transport it serves and where.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rec, running := daemon.OpenPIDFile(cfg.DataDir).Running()
	printStatus(cmd.OutOrStdout(), rec, running, time.Now())
	return nil
}

func printStatus(w io.Writer, rec daemon.Record, running bool, now time.Time) {
	if !running {
		fmt.Fprintln(w, "Status: stopped")
		return
	}
	fmt.Fprintln(w, "Status: running")
	fmt.Fprintf(w, "PID: %d\n", rec.PID)
	if rec.Transport != "" {
		fmt.Fprintf(w, "Transport: %s\n", rec.Transport)
	}
	if rec.Addr != "" {
		fmt.Fprintf(w, "Address: %s\n", rec.Addr)
	}
	if rec.Root != "" {
		fmt.Fprintf(w, "Documents: %s\n", rec.Root)
	}
	if !rec.StartedAt.IsZero() {
		fmt.Fprintf(w, "Uptime: %s\n", formatDuration(now.Sub(rec.StartedAt)))
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, s := d/time.Hour, (d%time.Hour)/time.Minute, (d%time.Minute)/time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show photon daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := currentPaths()
		if err != nil {
			return err
		}

		pid, pidPath, err := paths.ReadDaemonPID()
		if err != nil {
			fmt.Println("Daemon: not running")
			return nil
		}

		process, err := os.FindProcess(pid)
		if err != nil || process.Signal(syscall.Signal(0)) != nil {
			fmt.Printf("Daemon: not running (stale PID file at %s)\n", pidPath)
			return nil
		}

		c, err := connectNoAutostart(paths)
		if err != nil {
			fmt.Printf("Daemon: running (PID %d), socket not reachable: %v\n", pid, err)
			return nil
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "ping"}, 2*time.Second)
		if err != nil || resp.Type != "pong" {
			fmt.Printf("Daemon: running (PID %d), not responding to ping\n", pid)
			return nil
		}

		fmt.Printf("Daemon: running (PID %d)\n", pid)
		fmt.Printf("Socket: %s\n", paths.SocketPath())

		if locks, err := c.Call(&protocol.Request{Type: "list_locks"}, 2*time.Second); err == nil {
			fmt.Printf("Locks: %d held\n", len(locks.Locks))
		}
		if jobs, err := c.Call(&protocol.Request{Type: "list_jobs"}, 2*time.Second); err == nil {
			fmt.Printf("Jobs: %d scheduled\n", len(jobs.Jobs))
		}
		if hooks, err := c.Call(&protocol.Request{Type: "list_webhooks"}, 2*time.Second); err == nil {
			fmt.Printf("Webhooks: %d bound\n", len(hooks.Webhooks))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package cmd

import (
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check a photon's daemon and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := currentPaths()
		if err != nil {
			return err
		}
		allOK := true

		cfgPath, err := paths.ConfigFilePath()
		if err != nil {
			fmt.Printf("Config:  FAIL (cannot determine path: %v)\n", err)
			allOK = false
		} else if cfg, err := config.LoadOrDefault(cfgPath); err != nil {
			fmt.Printf("Config:  FAIL (%v)\n", err)
			allOK = false
		} else {
			fmt.Printf("Config:  OK (idle_timeout=%s, %s)\n", cfg.IdleTimeout, cfgPath)
		}

		socketPath := paths.SocketPath()
		if info, err := os.Stat(socketPath); err != nil {
			fmt.Printf("Socket:  WARN (not present at %s)\n", socketPath)
		} else if perm := info.Mode().Perm(); perm&0077 != 0 {
			fmt.Printf("Socket:  FAIL (insecure permissions %04o at %s)\n", perm, socketPath)
			allOK = false
		} else {
			fmt.Printf("Socket:  OK (%04o, %s)\n", perm, socketPath)
		}

		pid, _, err := paths.ReadDaemonPID()
		if err != nil {
			fmt.Println("Daemon:  WARN (no PID file, daemon may not be running)")
		} else if process, _ := os.FindProcess(pid); process != nil && process.Signal(syscall.Signal(0)) == nil {
			fmt.Printf("Daemon:  OK (PID %d)\n", pid)
		} else {
			fmt.Printf("Daemon:  WARN (PID %d not running, stale PID file)\n", pid)
		}

		if conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond); err != nil {
			fmt.Println("Connect: WARN (cannot connect to daemon socket)")
		} else {
			conn.Close()
			fmt.Println("Connect: OK")
		}

		if !allOK {
			return fmt.Errorf("some checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

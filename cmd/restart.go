package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/client"
	"github.com/photon-run/photond/internal/protocol"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the photon daemon",
	Long:  "Sends a shutdown request and waits for the process to exit. With --source, a fresh daemon is started back up immediately.",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := currentPaths()
		if err != nil {
			return err
		}

		pid, _, err := paths.ReadDaemonPID()
		if err != nil {
			fmt.Println("daemon not running, nothing to restart")
		} else if c, dialErr := connectNoAutostart(paths); dialErr == nil {
			c.Send(&protocol.Request{Type: "shutdown"})
			c.Close()

			process, _ := os.FindProcess(pid)
			for i := 0; i < 50; i++ {
				time.Sleep(100 * time.Millisecond)
				if process == nil || process.Signal(syscall.Signal(0)) != nil {
					break
				}
			}
			fmt.Println("daemon stopped")
		} else {
			fmt.Println("daemon already stopped")
		}

		if sourcePath == "" {
			fmt.Println("pass --source to start a fresh daemon now")
			return nil
		}
		if err := client.EnsureDaemon(paths, sourcePath); err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}
		fmt.Println("daemon restarted")
		return nil
	},
}

func init() {
	restartCmd.Flags().StringVar(&sourcePath, "source", "", "path to the photon's compiled plugin, to start a fresh daemon")
	rootCmd.AddCommand(restartCmd)
}

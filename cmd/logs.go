package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show daemon logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := currentPaths()
		if err != nil {
			return err
		}
		logDir, err := paths.LogDir()
		if err != nil {
			return err
		}

		logFile := filepath.Join(logDir, "daemon.log")
		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			fmt.Println("No log file found at", logFile)
			return nil
		}

		if logsFollow {
			tailCmd := exec.Command("tail", "-f", logFile)
			tailCmd.Stdout = os.Stdout
			tailCmd.Stderr = os.Stderr
			return tailCmd.Run()
		}

		tailCmd := exec.Command("tail", "-n", "50", logFile)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	rootCmd.AddCommand(logsCmd)
}

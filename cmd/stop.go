package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut down the photon daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := currentPaths()
		if err != nil {
			return err
		}
		c, err := connectNoAutostart(paths)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}
		defer c.Close()

		if err := c.Send(&protocol.Request{Type: "shutdown"}); err != nil {
			return err
		}
		fmt.Println("sent shutdown request")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var reloadCmd = &cobra.Command{
	Use:   "reload <source>",
	Short: "Hot-reload the photon from a new (or the same) source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "reload", PhotonPath: args[0]}, 30*time.Second)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		fmt.Println("reloaded")
		return nil
	},
}

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "List bound webhook paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "list_webhooks"}, 10*time.Second)
		if err != nil {
			return err
		}
		for _, w := range resp.Webhooks {
			fmt.Printf("%s\t-> %s\n", w.Path, w.Method)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(webhooksCmd)
}

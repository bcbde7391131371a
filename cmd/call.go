package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var (
	callArgsJSON string
	callTimeout  time.Duration
	callSession  string
)

var callCmd = &cobra.Command{
	Use:   "call <method>",
	Short: "Invoke a method on the running photon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		var rawArgs json.RawMessage
		if callArgsJSON != "" {
			rawArgs = json.RawMessage(callArgsJSON)
		}

		resp, err := c.Call(&protocol.Request{
			Type:      "command",
			Method:    args[0],
			Args:      rawArgs,
			SessionID: callSession,
		}, callTimeout)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		fmt.Println(string(resp.Result))
		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callArgsJSON, "args", "", "method arguments as a JSON object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "how long to wait for a result")
	callCmd.Flags().StringVar(&callSession, "session", "", "session id (defaults to this connection)")
	callCmd.Flags().StringVar(&sourcePath, "source", "", "path to the photon's compiled plugin, to auto-start if not running")
	rootCmd.AddCommand(callCmd)
}

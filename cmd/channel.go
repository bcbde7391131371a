package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var publishMessage string

var publishCmd = &cobra.Command{
	Use:   "publish <channel>",
	Short: "Publish a message on a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		msg := json.RawMessage(publishMessage)
		if publishMessage == "" {
			msg = json.RawMessage("null")
		}

		resp, err := c.Call(&protocol.Request{
			Type:    "publish",
			Channel: args[0],
			Message: msg,
		}, 10*time.Second)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		fmt.Printf("delivered to %d subscriber(s)\n", *resp.Delivered)
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <channel>",
	Short: "Subscribe to a channel and print messages until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "subscribe", Channel: args[0]}, 10*time.Second)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		fmt.Fprintf(os.Stderr, "subscribed to %q (%d subscriber(s))\n", args[0], *resp.SubscriberCount)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case msg := <-c.Notifications():
				if msg.Type != "channel_message" || msg.Channel != args[0] {
					continue
				}
				fmt.Println(string(msg.Message))
			case <-sigCh:
				return nil
			}
		}
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishMessage, "message", "", "message payload as JSON (default: null)")
	publishCmd.Flags().StringVar(&sourcePath, "source", "", "path to the photon's compiled plugin, to auto-start if not running")
	subscribeCmd.Flags().StringVar(&sourcePath, "source", "", "path to the photon's compiled plugin, to auto-start if not running")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(subscribeCmd)
}

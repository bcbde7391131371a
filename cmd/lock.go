package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var (
	lockWait      bool
	lockTimeoutMs int64
	lockSession   string
)

var lockCmd = &cobra.Command{
	Use:   "lock <name>",
	Short: "Acquire a named lock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		wait := lockWait
		resp, err := c.Call(&protocol.Request{
			Type:        "lock",
			LockName:    args[0],
			SessionID:   lockSession,
			Wait:        &wait,
			LockTimeout: lockTimeoutMs,
		}, time.Duration(lockTimeoutMs+5000)*time.Millisecond)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		if resp.Acquired == nil || !*resp.Acquired {
			reason := resp.Reason
			if reason == "" {
				reason = "held by " + resp.Holder
			}
			return fmt.Errorf("lock %q not acquired (%s)", args[0], reason)
		}
		fmt.Printf("acquired %q (expires at %d)\n", args[0], *resp.ExpiresAt)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <name>",
	Short: "Release a named lock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{
			Type:      "unlock",
			LockName:  args[0],
			SessionID: lockSession,
		}, 10*time.Second)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		if resp.Released == nil || !*resp.Released {
			return fmt.Errorf("lock %q was not released (%s)", args[0], resp.Reason)
		}
		fmt.Printf("released %q\n", args[0])
		return nil
	},
}

var listLocksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List held locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "list_locks"}, 10*time.Second)
		if err != nil {
			return err
		}
		for _, l := range resp.Locks {
			fmt.Printf("%s\theld by %s\texpires %d\n", l.Name, l.Holder, l.ExpiresAt)
		}
		return nil
	},
}

func init() {
	lockCmd.Flags().BoolVar(&lockWait, "wait", false, "block until the lock is free instead of failing immediately")
	lockCmd.Flags().Int64Var(&lockTimeoutMs, "timeout", 0, "lock hold / wait timeout in milliseconds (0 = daemon default)")
	lockCmd.Flags().StringVar(&lockSession, "session", "cli", "session id identifying this lock holder")
	unlockCmd.Flags().StringVar(&lockSession, "session", "cli", "session id identifying the lock holder")
	lockCmd.Flags().StringVar(&sourcePath, "source", "", "path to the photon's compiled plugin, to auto-start if not running")

	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(listLocksCmd)
}

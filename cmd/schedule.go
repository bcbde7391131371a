package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/protocol"
)

var scheduleArgsJSON string

var scheduleCmd = &cobra.Command{
	Use:   "schedule <job-id> <method> <cron>",
	Short: "Schedule a recurring method call",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		var rawArgs json.RawMessage
		if scheduleArgsJSON != "" {
			rawArgs = json.RawMessage(scheduleArgsJSON)
		}

		resp, err := c.Call(&protocol.Request{
			Type:   "schedule",
			JobID:  args[0],
			Method: args[1],
			Cron:   args[2],
			Args:   rawArgs,
		}, 10*time.Second)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		fmt.Printf("scheduled %q\n", args[0])
		return nil
	},
}

var unscheduleCmd = &cobra.Command{
	Use:   "unschedule <job-id>",
	Short: "Cancel a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "unschedule", JobID: args[0]}, 10*time.Second)
		if err != nil {
			return err
		}
		if resp.Type == "error" {
			return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
		}
		if resp.Unscheduled == nil || !*resp.Unscheduled {
			return fmt.Errorf("job %q not found", args[0])
		}
		fmt.Printf("unscheduled %q\n", args[0])
		return nil
	},
}

var listJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Call(&protocol.Request{Type: "list_jobs"}, 10*time.Second)
		if err != nil {
			return err
		}
		for _, j := range resp.Jobs {
			degraded := ""
			if j.Degraded {
				degraded = " (degraded)"
			}
			fmt.Printf("%s\t%s\t%s\tnext=%d\truns=%d%s\n", j.ID, j.Method, j.Cron, j.NextRun, j.RunCount, degraded)
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleArgsJSON, "args", "", "method arguments as a JSON object")
	scheduleCmd.Flags().StringVar(&sourcePath, "source", "", "path to the photon's compiled plugin, to auto-start if not running")

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(unscheduleCmd)
	rootCmd.AddCommand(listJobsCmd)
}

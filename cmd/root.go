package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/config"
)

var photonName string

var rootCmd = &cobra.Command{
	Use:   "photon",
	Short: "Turn an annotated source file into an RPC/webhook/cron daemon",
	Long:  "photon hosts a single annotated source file as a daemon exposing RPC, webhooks, cron jobs, and pub/sub, with single-writer serialization guarantees.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&photonName, "photon", "", "photon name (required; there is no default)")
}

func currentPaths() (*config.Paths, error) {
	if photonName == "" {
		return nil, fmt.Errorf("no --photon name given (pass --photon <name>)")
	}
	return config.New(photonName), nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/photon-run/photond/internal/config"
	"github.com/photon-run/photond/internal/daemon"
	"github.com/photon-run/photond/internal/logging"
	"github.com/photon-run/photond/internal/photon"
)

var (
	daemonForeground bool
	daemonSource     string
)

var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Short:  "Run a photon daemon (internal — started automatically by the CLI)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if photonName == "" {
			return fmt.Errorf("--photon is required")
		}
		if daemonSource == "" {
			return fmt.Errorf("--source is required")
		}

		syscall.Umask(0077)
		signal.Ignore(syscall.SIGINT, syscall.SIGHUP, syscall.SIGPIPE)

		paths := config.New(photonName)

		cfgPath, err := paths.ConfigFilePath()
		if err != nil {
			return err
		}
		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logDir, err := paths.LogDir()
		if err != nil {
			return err
		}
		if err := config.EnsureDir(logDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "photon: cannot create log directory: %v\n", err)
		}

		level := slog.LevelInfo
		logger, logCleanup, logErr := logging.Setup(logDir, level, daemonForeground)
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "photon: cannot set up file logging: %v\n", logErr)
			logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			logCleanup = func() {}
		}
		defer logCleanup()
		logger = logging.ComponentLogger(logger, "supervisor")

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info("received SIGTERM, shutting down")
			cancel()
		}()

		sup := daemon.NewSupervisor(daemon.Options{
			PhotonName: photonName,
			SourcePath: daemonSource,
			Paths:      paths,
			Config:     cfg,
			Extractor:  photon.NewPluginExtractor(),
			Logger:     logger,
		})
		return sup.Run(ctx)
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "Run in foreground, also logging to stderr")
	daemonCmd.Flags().StringVar(&daemonSource, "source", "", "path to the photon's compiled plugin (.so)")
	rootCmd.AddCommand(daemonCmd)
}

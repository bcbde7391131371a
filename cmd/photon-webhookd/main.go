// Command photon-webhookd is the HTTP front door from §6.4: a
// separate process that connects to a photon daemon's socket as a
// privileged client and exposes its bound webhooks over HTTP.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/photon-run/photond/internal/config"
	"github.com/photon-run/photond/internal/webhookd"
)

func main() {
	photonName := flag.String("photon", "", "photon name to front")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	if *photonName == "" {
		fmt.Fprintln(os.Stderr, "photon-webhookd: --photon is required")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "webhookd", "photon", *photonName)
	paths := config.New(*photonName)
	srv := webhookd.New(paths, logger)

	logger.Info("listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, srv.Router()); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"

	"github.com/photon-run/photond/internal/client"
	"github.com/photon-run/photond/internal/config"
)

var sourcePath string

// connect dials the running photon daemon, auto-starting it first when
// --source was given (so a cold-start command works without a
// separate "start" step).
func connect() (*client.Client, error) {
	paths, err := currentPaths()
	if err != nil {
		return nil, err
	}
	if sourcePath != "" {
		if err := client.EnsureDaemon(paths, sourcePath); err != nil {
			return nil, fmt.Errorf("start daemon: %w", err)
		}
	}
	c, err := client.Dial(paths)
	if err != nil {
		return nil, fmt.Errorf("connect to photon %q (is it running? pass --source to auto-start): %w", photonName, err)
	}
	return c, nil
}

// connectNoAutostart dials an already-running daemon without spawning
// one — used by status, stop and restart, which should report absence
// rather than cause a side effect.
func connectNoAutostart(paths *config.Paths) (*client.Client, error) {
	return client.Dial(paths)
}

// Command photon is the CLI and daemon entry point: it both launches
// the daemon (the hidden `daemon` subcommand, normally auto-started)
// and drives a running one over its socket protocol.
package main

import "github.com/photon-run/photond/cmd"

func main() {
	cmd.Execute()
}

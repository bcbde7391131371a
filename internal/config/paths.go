package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Paths resolves every filesystem location a photon's daemon and its
// clients need to agree on (§6.1 discovery contract). One Paths value
// is constructed per photon name and handed to every component that
// needs a path — never recomputed ad hoc.
type Paths struct {
	Photon string
}

func New(photon string) *Paths {
	return &Paths{Photon: photon}
}

func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// SocketPath returns ${XDG_RUNTIME_DIR:-/tmp}/photon/<P>.sock.
func (p *Paths) SocketPath() string {
	return filepath.Join(runtimeDir(), "photon", p.Photon+".sock")
}

// PIDFilePath returns ${XDG_RUNTIME_DIR:-/tmp}/photon/<P>.pid.
func (p *Paths) PIDFilePath() string {
	return filepath.Join(runtimeDir(), "photon", p.Photon+".pid")
}

// LockFilePath is the flock target used to serialize daemon startup,
// kept alongside the PID file.
func (p *Paths) LockFilePath() string {
	return filepath.Join(runtimeDir(), "photon", p.Photon+".lock")
}

func homeDir() (string, error) {
	if dir := os.Getenv("PHOTON_HOME"); dir != "" {
		return dir, nil
	}
	return os.UserHomeDir()
}

// StateDir returns ${HOME}/.photon/state/<P>/, where the Instance Host
// persists stateful-field snapshots.
func (p *Paths) StateDir() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("state dir: %w", err)
	}
	return filepath.Join(home, ".photon", "state", p.Photon), nil
}

// EnvStorePath returns ${HOME}/.photon/env/<P>.json, consulted by
// constructor-parameter classification for primitive values.
func (p *Paths) EnvStorePath() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("env store path: %w", err)
	}
	return filepath.Join(home, ".photon", "env", p.Photon+".json"), nil
}

// ConfigDir is not part of the §6.1 discovery contract but is where
// the daemon's own config.json and logs live.
func (p *Paths) ConfigDir() (string, error) {
	if dir := os.Getenv("PHOTON_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, p.Photon), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "photon", p.Photon), nil
}

func (p *Paths) ConfigFilePath() (string, error) {
	dir, err := p.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func (p *Paths) LogDir() (string, error) {
	dir, err := p.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ReadDaemonPID reads and parses the PID from the daemon PID file.
func (p *Paths) ReadDaemonPID() (int, string, error) {
	pidPath := p.PIDFilePath()
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, pidPath, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, pidPath, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, pidPath, nil
}

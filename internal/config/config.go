package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config holds daemon-wide tunables for one photon. Unlike a
// multi-server launcher's config.json, there is exactly one of these
// per photon: the daemon hosts one photon's instance.
type Config struct {
	IdleTimeout              string `json:"idle_timeout,omitempty"`
	LogLevel                 string `json:"log_level,omitempty"`
	DrainDeadline            string `json:"drain_deadline,omitempty"`
	DebounceWrite            string `json:"debounce_write,omitempty"`
	ReleaseLocksOnDisconnect bool   `json:"release_locks_on_disconnect,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		IdleTimeout:   "30m",
		LogLevel:      "info",
		DrainDeadline: "10s",
		DebounceWrite: "500ms",
	}
}

func (c *Config) IdleTimeoutDuration() time.Duration {
	return parseDurationOr(c.IdleTimeout, 30*time.Minute)
}

func (c *Config) DrainDeadlineDuration() time.Duration {
	return parseDurationOr(c.DrainDeadline, 10*time.Second)
}

func (c *Config) DebounceWriteDuration() time.Duration {
	return parseDurationOr(c.DebounceWrite, 500*time.Millisecond)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func Load(path string) (*Config, error) {
	// Verify file permissions before reading (trust boundary check)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("config file %s has insecure permissions %o (expected 0600). Fix with: chmod 600 %s", path, perm, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path if present, else returns DefaultConfig()
// without creating the file — the daemon writes it lazily on Save.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	return AtomicWriteFile(path, data, 0600)
}

var envVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// ResolveEnv resolves $VAR references in env values from the process environment.
func ResolveEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	resolved := make(map[string]string, len(env))
	for k, v := range env {
		resolved[k] = envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
			return os.Getenv(match[1:]) // strip leading $
		})
	}
	return resolved
}

// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config carries all tunables for the server process. Defaults are suitable
// for a local, loopback-only deployment against the live Messages database.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds. ENV: IMSG_LISTEN_ADDR
	ListenAddr string `env:"IMSG_LISTEN_ADDR,default=127.0.0.1:8787"`
	// EndpointPath is the URL path the MCP endpoint mounts at. ENV: IMSG_ENDPOINT_PATH
	EndpointPath string `env:"IMSG_ENDPOINT_PATH,default=/mcp"`

	// ChatDBPath points at the Messages sqlite store. Empty means the
	// per-user default. ENV: IMSG_CHAT_DB
	ChatDBPath string `env:"IMSG_CHAT_DB"`
	// AddressBookPath points at the Contacts sqlite store used for handle
	// resolution. Empty disables contact resolution. ENV: IMSG_ADDRESS_BOOK
	AddressBookPath string `env:"IMSG_ADDRESS_BOOK"`
	// WatchDB enables filesystem watching of the chat database for
	// server-push change notifications. ENV: IMSG_WATCH_DB
	WatchDB bool `env:"IMSG_WATCH_DB,default=true"`

	// MaxSessions caps concurrently live sessions; admission is
	// reject-not-queue. ENV: IMSG_MAX_SESSIONS
	MaxSessions int `env:"IMSG_MAX_SESSIONS,default=32"`
	// SessionIdleTimeout expires sessions with no activity. ENV: IMSG_SESSION_IDLE_TIMEOUT
	SessionIdleTimeout time.Duration `env:"IMSG_SESSION_IDLE_TIMEOUT,default=1h"`
	// SweepInterval is the cadence of the expiry sweep. ENV: IMSG_SWEEP_INTERVAL
	SweepInterval time.Duration `env:"IMSG_SWEEP_INTERVAL,default=5m"`
	// RequestTimeout bounds how long a synchronous POST waits for the
	// engine to answer. ENV: IMSG_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"IMSG_REQUEST_TIMEOUT,default=300s"`
	// KeepAliveInterval is the SSE comment cadence. ENV: IMSG_KEEPALIVE_INTERVAL
	KeepAliveInterval time.Duration `env:"IMSG_KEEPALIVE_INTERVAL,default=30s"`

	// LogLevel is one of debug, info, warn, error. ENV: IMSG_LOG_LEVEL
	LogLevel string `env:"IMSG_LOG_LEVEL,default=info"`
}

// FromEnv decodes a Config from the environment and fills derived defaults.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode env config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	if c.ChatDBPath == "" {
		c.ChatDBPath = filepath.Join(home, "Library", "Messages", "chat.db")
	}
	if c.AddressBookPath == "" {
		abRoot := filepath.Join(home, "Library", "Application Support", "AddressBook")
		candidate := filepath.Join(abRoot, "AddressBook-v22.abcddb")
		if _, statErr := os.Stat(candidate); statErr == nil {
			c.AddressBookPath = candidate
		}
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.EndpointPath == "" || c.EndpointPath[0] != '/' {
		return fmt.Errorf("endpoint path must start with /, got %q", c.EndpointPath)
	}
	return nil
}

// Package config defines the bridge's command-line flags and the two
// environment variables it reads directly from the process
// environment.
package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Flags mirrors main()'s argparse.ArgumentParser: logging level,
// database path, and the two room names to bridge.
type Flags struct {
	LogLevel     string
	DBPath       string
	EuphoriaRoom string
	InstantRoom  string
}

// RegisterFlags attaches the bridge's flags to cmd, matching the
// original's defaults (--loglevel INFO, --db in-memory, both rooms
// default to "test").
func RegisterFlags(cmd *cobra.Command) *Flags {
	f := &Flags{}
	cmd.Flags().StringVar(&f.LogLevel, "loglevel", "INFO", "logging level to use")
	cmd.Flags().StringVar(&f.DBPath, "db", "", "database path (default in-memory)")
	cmd.Flags().StringVar(&f.EuphoriaRoom, "euphoria-room", "test", "euphoria room to bridge")
	cmd.Flags().StringVar(&f.InstantRoom, "instant-room", "test", "instant room to bridge")
	return f
}

// Env holds the two environment-variable-driven settings the original
// reads via os.environ.get at import time.
type Env struct {
	InstantRoomTemplate string `env:"INSTANT_ROOM_TEMPLATE" envDefault:"wss://instant.leet.nu/room/{}/ws"`
	DBSync              string `env:"BRIDGE_DB_SYNC"`
}

// Load optionally applies a local .env file (a missing file is not an
// error, matching godotenv.Load's convention for dev convenience) and
// parses Env from the process environment.
func Load() (*Env, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "config: load .env")
	}
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, errors.Wrap(err, "config: parse environment")
	}
	return &e, nil
}

// ValidSync reports whether a BRIDGE_DB_SYNC value is safe to splice
// into a PRAGMA statement (the original's re.match('^[A-Za-z0-9]+$', sync)).
func (e *Env) ValidSync() bool {
	if e.DBSync == "" {
		return false
	}
	for _, r := range e.DBSync {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Package pairing parses configuration for the pairing session store command.
package pairing

import (
	"context"
	"flag"
	"strings"
	"time"

	pairingservice "github.com/louisbranch/warden/internal/services/pairing"
	server "github.com/louisbranch/warden/internal/services/pairing/app"
)

// Config holds pairing command configuration.
type Config struct {
	HTTPAddr string
	DBPath   string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config. Flags take precedence over the
// environment.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		HTTPAddr: envOrDefault(lookup, []string{"WARDEN_PAIRING_HTTP_ADDR"}, ":8086"),
		DBPath:   envOrDefault(lookup, []string{"WARDEN_PAIRING_DB_PATH"}, "data/pairing.db"),
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The session store HTTP address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the session SQLite database")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the session store server.
func Run(ctx context.Context, cfg Config) error {
	serviceConfig, err := pairingservice.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	serviceConfig.HTTPAddr = cfg.HTTPAddr
	serviceConfig.DBPath = cfg.DBPath
	if serviceConfig.SessionTTL <= 0 {
		serviceConfig.SessionTTL = 10 * time.Minute
	}
	return server.Run(ctx, serviceConfig)
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}

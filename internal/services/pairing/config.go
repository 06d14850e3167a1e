package pairing

import (
	"fmt"
	"time"

	"github.com/louisbranch/warden/internal/platform/config"
)

// Config controls the session store service.
type Config struct {
	HTTPAddr        string        `env:"WARDEN_PAIRING_HTTP_ADDR"        envDefault:":8086"`
	DBPath          string        `env:"WARDEN_PAIRING_DB_PATH"          envDefault:"data/pairing.db"`
	SessionTTL      time.Duration `env:"WARDEN_PAIRING_SESSION_TTL"      envDefault:"10m"`
	CleanupInterval time.Duration `env:"WARDEN_PAIRING_CLEANUP_INTERVAL" envDefault:"5m"`
}

// LoadConfigFromEnv reads service configuration from the environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse pairing config: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("session ttl must be positive")
	}
	return cfg, nil
}

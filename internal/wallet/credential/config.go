package credential

import (
	"github.com/louisbranch/warden/internal/platform/config"
)

// Config controls WebAuthn relying party settings for passkey ceremonies.
type Config struct {
	RPDisplayName string   `env:"WARDEN_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Warden"`
	RPID          string   `env:"WARDEN_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string `env:"WARDEN_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{
			RPDisplayName: "Warden",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8086"},
		}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = "Warden"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8086"}
	}
	return cfg
}

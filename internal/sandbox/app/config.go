package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the sandbox's environment-driven configuration.
type Config struct {
	Port                int           `env:"PORT" envDefault:"8080"`
	Env                 string        `env:"ENV" envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	// ProviderURL points at a hosted identity provider's API. Empty selects
	// the in-process provider, which needs no network at all.
	ProviderURL string `env:"SANDBOX_PROVIDER_URL"`

	// Issuer is the token issuer claim used by the in-process provider.
	Issuer string `env:"SANDBOX_ISSUER" envDefault:"authsandbox-local"`

	// BridgeMode selects the native shell stand-in: "host" wires the fake
	// in-process host, "none" runs without a bridge so federated sign-in
	// takes the redirect path.
	BridgeMode string `env:"SANDBOX_BRIDGE" envDefault:"host"`

	// GlobalSignOut invalidates every session of the principal on sign-out.
	GlobalSignOut bool `env:"SANDBOX_GLOBAL_SIGNOUT" envDefault:"false"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.BridgeMode {
	case "host", "none":
	default:
		return Config{}, fmt.Errorf("invalid SANDBOX_BRIDGE value %q (want host or none)", cfg.BridgeMode)
	}

	return cfg, nil
}

// Package config loads the engine's process-level settings from the
// environment and the operator-authored session configuration from disk.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds process-level settings: how the engine listens and logs,
// independent of any particular search session.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	SSH struct {
		KnownHostsPath string `env:"SSH_KNOWN_HOSTS" envDefault:"~/.ssh/known_hosts"`
	}
	Session struct {
		Root string `env:"SESSION_ROOT" envDefault:"."`
	}
}

// Load parses process-level configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && os.Getenv("LOG_LEVEL") == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andrebq/sealgate/auth"
	"github.com/kelseyhightower/envconfig"
)

const (
	Prefix = "SEALGATE"
)

// Config holds the runtime configuration, read from SEALGATE_* variables.
type Config struct {
	Env              string        `envconfig:"ENV" default:"development"`
	PreviousSecrets  []string      `envconfig:"PREVIOUS_SECRETS"`
	RegistrationOpen bool          `envconfig:"REGISTRATION_OPEN" default:"false"`
	Store            string        `envconfig:"STORE" default:"sealgate.db"`
	SecureCookies    bool          `envconfig:"SECURE_COOKIES" default:"false"`
	SessionMaxAge    time.Duration `envconfig:"SESSION_MAX_AGE" default:"336h"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"12"`
	LoginPath        string        `envconfig:"LOGIN_PATH" default:"/login"`
	LoginMaxFailures int           `envconfig:"LOGIN_MAX_FAILURES" default:"5"`
	LoginLockout     time.Duration `envconfig:"LOGIN_LOCKOUT" default:"15m"`
	PolicyScript     string        `envconfig:"POLICY_SCRIPT"`
	Bind             string        `envconfig:"BIND" default:"localhost:7010"`
	LogFormat        string        `envconfig:"LOG_FORMAT" default:"console"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	Metrics          bool          `envconfig:"METRICS" default:"true"`
}

// Load reads the configuration. The sealing secret is not part of it, see
// Keyring.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("unable to load configuration, cause %w", err)
	}
	os.Unsetenv(Prefix + "_PREVIOUS_SECRETS")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		cfg.SecureCookies = true
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case "development", "production", "test":
	default:
		return fmt.Errorf("invalid %v_ENV %q, expecting development, production or test", Prefix, c.Env)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid %v_BCRYPT_COST %v, expecting a value between 4 and 31", Prefix, c.BcryptCost)
	}
	if c.IsProduction() && c.BcryptCost < 10 {
		return fmt.Errorf("refusing to run production with %v_BCRYPT_COST below 10", Prefix)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("invalid %v_SESSION_MAX_AGE %v", Prefix, c.SessionMaxAge)
	}
	return nil
}

// IsProduction returns true when the process runs with the strict posture.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// Keyring reads SEALGATE_SECRET, wiping it from the environment, and
// builds the keyring with the retired secrets. Without a secret the keyring
// is ephemeral, which production refuses.
func (c *Config) Keyring(ctx context.Context) (*auth.Keyring, error) {
	keyfn, err := auth.KeyFNFromEnv(auth.SecretEnvVar, os.Getenv, os.Setenv)
	if err != nil {
		return nil, fmt.Errorf("unable to read %v, cause %w", auth.SecretEnvVar, err)
	}
	current, err := keyfn(ctx)
	if err != nil {
		return nil, err
	}
	var previous []*auth.Key
	for i, s := range c.PreviousSecrets {
		k, err := auth.ParseSecret(s)
		if err != nil {
			return nil, fmt.Errorf("unable to parse previous secret %v, cause %w", i, err)
		}
		previous = append(previous, k)
	}
	return auth.NewKeyring(current, previous, c.IsProduction())
}

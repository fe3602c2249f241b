package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SMSDEMO_WEBHOOK_SECRET.
const EnvPrefix = "SMSDEMO"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Overrides carries command-line values; nil fields are left alone.
type Overrides struct {
	Host    *string
	Port    *int
	Secret  *string
	Binding *string
	Scheme  *string
}

// Load builds the configuration from defaults, an optional YAML file,
// SMSDEMO_* environment variables and finally overrides, then validates it.
func Load(configPath string, overrides Overrides) (*Config, error) {
	cfg, err := Resolve(configPath, overrides)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve layers the configuration like Load but skips validation, so callers
// can report every problem at once.
func Resolve(configPath string, overrides Overrides) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	overrides.apply(cfg)
	return cfg, nil
}

// loadConfigFile decodes path over cfg so unset keys keep their defaults.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", path)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (o Overrides) apply(cfg *Config) {
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if o.Secret != nil {
		cfg.Webhook.Secret = *o.Secret
	}
	if o.Binding != nil {
		cfg.Server.Binding = *o.Binding
	}
	if o.Scheme != nil {
		cfg.Webhook.Scheme = *o.Scheme
	}
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract variable name from ${VAR}
		varName := envVarPattern.FindStringSubmatch(match)[1]

		// Look up environment variable
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

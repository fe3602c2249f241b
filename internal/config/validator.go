package config

import (
	"fmt"
	"strings"
)

var (
	validBindings  = map[string]bool{"raw": true, "chi": true, "fiber": true}
	validSchemes   = map[string]bool{"timestamped": true, "legacy": true}
	validBackends  = map[string]bool{"sqlite": true, "bolt": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	if cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required")
	}
	if envVarPattern.MatchString(cfg.Webhook.Secret) {
		matches := envVarPattern.FindStringSubmatch(cfg.Webhook.Secret)
		return fmt.Errorf("webhook.secret: environment variable ${%s} is not set", matches[1])
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got %d)", cfg.Server.Port)
	}
	if !validBindings[cfg.Server.Binding] {
		return fmt.Errorf("server.binding must be one of: raw, chi, fiber (got %q)", cfg.Server.Binding)
	}

	if !validSchemes[cfg.Webhook.Scheme] {
		return fmt.Errorf("webhook.scheme must be one of: timestamped, legacy (got %q)", cfg.Webhook.Scheme)
	}
	if cfg.Webhook.Scheme == "legacy" && cfg.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required for the legacy scheme")
	}
	for name, path := range map[string]string{"sms_path": cfg.Webhook.SMSPath, "mdr_path": cfg.Webhook.MDRPath} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("webhook.%s must start with '/' (got %q)", name, path)
		}
	}
	if !cfg.Webhook.LegacySingleEndpoint && cfg.Webhook.SMSPath == cfg.Webhook.MDRPath {
		return fmt.Errorf("webhook.sms_path and webhook.mdr_path must differ")
	}
	if _, err := ParseSize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size %q: %w", cfg.Webhook.MaxBodySize, err)
	}
	if cfg.Webhook.Tolerance < 0 {
		return fmt.Errorf("webhook.tolerance must not be negative")
	}

	if cfg.Send.URL == "" {
		return fmt.Errorf("send.url is required")
	}

	if cfg.Replay.Path != "" && !validBackends[cfg.Replay.Backend] {
		return fmt.Errorf("replay.backend must be one of: sqlite, bolt (got %q)", cfg.Replay.Backend)
	}
	if cfg.Replay.Path != "" && cfg.Webhook.Scheme == "legacy" {
		return fmt.Errorf("replay.path requires webhook.scheme timestamped: legacy signatures repeat for identical messages")
	}

	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	return nil
}

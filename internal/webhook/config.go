package webhook

import (
	"fmt"

	"github.com/mattjoyce/smsdemo/internal/config"
)

// FromGlobalConfig converts the webhook section of config.Config to
// webhook.Config and parses the max body size.
func FromGlobalConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if c.Webhook.Secret == "" {
		return Config{}, fmt.Errorf("webhook: no secret configured")
	}

	maxBodySize, err := config.ParseSize(c.Webhook.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", c.Webhook.MaxBodySize, err)
	}

	return Config{
		Secret:               c.Webhook.Secret,
		Scheme:               c.Webhook.Scheme,
		URL:                  c.Webhook.URL,
		Tolerance:            c.Webhook.Tolerance,
		SMSPath:              c.Webhook.SMSPath,
		MDRPath:              c.Webhook.MDRPath,
		LegacySingleEndpoint: c.Webhook.LegacySingleEndpoint,
		MaxBodySize:          maxBodySize,
	}, nil
}

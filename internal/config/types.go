package config

import "time"

// Config represents the complete smsdemo configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Server  ServerConfig  `yaml:"server"`
	Webhook WebhookConfig `yaml:"webhook"`
	Send    SendConfig    `yaml:"send"`
	Replay  ReplayConfig  `yaml:"replay"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	Name          string `yaml:"name"`
	LogLevel      string `yaml:"log_level" split_words:"true"`
	LogFormat     string `yaml:"log_format" split_words:"true"`
	MetricsListen string `yaml:"metrics_listen" split_words:"true"`
}

// ServerConfig is where the webhook listener binds and which binding serves it.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Binding string `yaml:"binding"` // raw, chi or fiber
}

// WebhookConfig defines the inbound protocol.
type WebhookConfig struct {
	// Secret is the shared HMAC key. Required.
	Secret string `yaml:"secret"`
	// Scheme is "timestamped" (default) or "legacy".
	Scheme string `yaml:"scheme"`
	// URL is the public webhook URL, signed by the legacy scheme.
	URL                  string        `yaml:"url"`
	SMSPath              string        `yaml:"sms_path" split_words:"true"`
	MDRPath              string        `yaml:"mdr_path" split_words:"true"`
	LegacySingleEndpoint bool          `yaml:"legacy_single_endpoint" split_words:"true"`
	MaxBodySize          string        `yaml:"max_body_size" split_words:"true"` // e.g. "1MB", "2048576"
	Tolerance            time.Duration `yaml:"tolerance"`
}

// SendConfig defines the outbound send API.
type SendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReplayConfig enables the replay guard when Path is set.
type ReplayConfig struct {
	Backend   string        `yaml:"backend"` // sqlite or bolt
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Defaults returns a Config with the documented defaults. The secret has none.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "smsdemo",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    80,
			Binding: "chi",
		},
		Webhook: WebhookConfig{
			Scheme:      "timestamped",
			URL:         "http://sms-demo.telnyx.com/sms",
			SMSPath:     "/sms",
			MDRPath:     "/mdr",
			MaxBodySize: "1MB",
		},
		Send: SendConfig{
			URL:     "https://sms.telnyx.com/send",
			Timeout: 10 * time.Second,
		},
		Replay: ReplayConfig{
			Backend:   "sqlite",
			Retention: 24 * time.Hour,
		},
	}
}

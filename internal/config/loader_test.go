package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		env       map[string]string
		overrides Overrides
		wantErr   bool
		checkFn   func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
webhook:
  secret: test-secret
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "0.0.0.0" {
					t.Errorf("host = %q, want 0.0.0.0", cfg.Server.Host)
				}
				if cfg.Server.Port != 80 {
					t.Errorf("port = %d, want 80", cfg.Server.Port)
				}
				if cfg.Webhook.Scheme != "timestamped" {
					t.Errorf("scheme = %q, want timestamped", cfg.Webhook.Scheme)
				}
				if cfg.Webhook.SMSPath != "/sms" || cfg.Webhook.MDRPath != "/mdr" {
					t.Error("default paths not applied")
				}
				if cfg.Send.Timeout != 10*time.Second {
					t.Error("default send timeout not applied")
				}
				if cfg.MaxBodyBytes() != DefaultMaxBodySize {
					t.Errorf("max body = %d, want %d", cfg.MaxBodyBytes(), DefaultMaxBodySize)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  log_level: debug
  log_format: text
  metrics_listen: 127.0.0.1:9090
server:
  host: 127.0.0.1
  port: 8080
  binding: fiber
webhook:
  secret: s3cret
  scheme: legacy
  url: https://example.com/sms
  legacy_single_endpoint: true
  max_body_size: 64KB
  tolerance: 5m
send:
  url: http://localhost:9999/send
  timeout: 2s
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Addr() != "127.0.0.1:8080" {
					t.Errorf("addr = %q", cfg.Addr())
				}
				if cfg.Server.Binding != "fiber" {
					t.Error("binding not parsed")
				}
				if cfg.Webhook.Scheme != "legacy" || cfg.Webhook.URL != "https://example.com/sms" {
					t.Error("legacy scheme not parsed")
				}
				if !cfg.Webhook.LegacySingleEndpoint {
					t.Error("legacy_single_endpoint not parsed")
				}
				if cfg.MaxBodyBytes() != 64*1024 {
					t.Errorf("max body = %d", cfg.MaxBodyBytes())
				}
				if cfg.Webhook.Tolerance != 5*time.Minute {
					t.Error("tolerance not parsed")
				}
				if cfg.Send.Timeout != 2*time.Second {
					t.Error("send timeout not parsed")
				}
			},
		},
		{
			name: "replay guard",
			yaml: `
webhook:
  secret: s3cret
  tolerance: 5m
replay:
  backend: bolt
  path: ./data/replay.bolt
  retention: 1h
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Replay.Backend != "bolt" || cfg.Replay.Path != "./data/replay.bolt" {
					t.Error("replay not parsed")
				}
				if cfg.Replay.Retention != time.Hour {
					t.Errorf("retention = %s, want 1h", cfg.Replay.Retention)
				}
			},
		},
		{
			name: "replay guard with legacy scheme",
			yaml: `
webhook:
  secret: s3cret
  scheme: legacy
  url: https://example.com/sms
replay:
  path: ./data/replay.db
`,
			wantErr: true,
		},
		{
			name: "env var interpolation",
			yaml: `
webhook:
  secret: ${SMSDEMO_TEST_SECRET}
`,
			env: map[string]string{"SMSDEMO_TEST_SECRET": "from-env"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Webhook.Secret != "from-env" {
					t.Errorf("secret = %q, want from-env", cfg.Webhook.Secret)
				}
			},
		},
		{
			name: "unresolved env var",
			yaml: `
webhook:
  secret: ${SMSDEMO_TEST_UNSET_SECRET}
`,
			wantErr: true,
		},
		{
			name: "environment overrides file",
			yaml: `
server:
  port: 8080
webhook:
  secret: file-secret
`,
			env: map[string]string{
				"SMSDEMO_SERVER_PORT":       "9000",
				"SMSDEMO_WEBHOOK_SECRET":    "env-secret",
				"SMSDEMO_SERVICE_LOG_LEVEL": "warn",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 9000 {
					t.Errorf("port = %d, want 9000", cfg.Server.Port)
				}
				if cfg.Webhook.Secret != "env-secret" {
					t.Errorf("secret = %q, want env-secret", cfg.Webhook.Secret)
				}
				if cfg.Service.LogLevel != "warn" {
					t.Errorf("log level = %q, want warn", cfg.Service.LogLevel)
				}
			},
		},
		{
			name: "overrides win over environment",
			yaml: `
webhook:
  secret: file-secret
`,
			env: map[string]string{"SMSDEMO_SERVER_BINDING": "fiber"},
			overrides: Overrides{
				Binding: strPtr("raw"),
				Port:    intPtr(8081),
				Secret:  strPtr("flag-secret"),
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Server.Binding != "raw" {
					t.Errorf("binding = %q, want raw", cfg.Server.Binding)
				}
				if cfg.Server.Port != 8081 {
					t.Errorf("port = %d, want 8081", cfg.Server.Port)
				}
				if cfg.Webhook.Secret != "flag-secret" {
					t.Errorf("secret = %q, want flag-secret", cfg.Webhook.Secret)
				}
			},
		},
		{
			name:    "missing secret",
			yaml:    "server:\n  port: 8080\n",
			wantErr: true,
		},
		{
			name:    "unknown binding",
			yaml:    "server:\n  binding: gin\nwebhook:\n  secret: s\n",
			wantErr: true,
		},
		{
			name:    "unknown scheme",
			yaml:    "webhook:\n  secret: s\n  scheme: md5\n",
			wantErr: true,
		},
		{
			name:    "bad port",
			yaml:    "server:\n  port: 70000\nwebhook:\n  secret: s\n",
			wantErr: true,
		},
		{
			name:    "bad max body size",
			yaml:    "webhook:\n  secret: s\n  max_body_size: lots\n",
			wantErr: true,
		},
		{
			name:    "same sms and mdr path",
			yaml:    "webhook:\n  secret: s\n  sms_path: /hook\n  mdr_path: /hook\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    "webhook: [unclosed\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := Load(configPath, tt.overrides)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFn != nil && cfg != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoad_NoFile(t *testing.T) {
	if _, err := Load("", Overrides{}); err == nil {
		t.Fatal("expected error without a secret")
	}

	cfg, err := Load("", Overrides{Secret: strPtr("cli-secret")})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Webhook.Secret != "cli-secret" {
		t.Errorf("secret = %q", cfg.Webhook.Secret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Overrides{Secret: strPtr("s")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"1KB", 1024, false},
		{"1mb", 1024 * 1024, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"99999999999999GB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/smsdemo/internal/config"
	"github.com/mattjoyce/smsdemo/internal/log"
	"github.com/mattjoyce/smsdemo/internal/metrics"
	"github.com/mattjoyce/smsdemo/internal/replay"
	"github.com/mattjoyce/smsdemo/internal/sender"
	"github.com/mattjoyce/smsdemo/internal/transport"
	"github.com/mattjoyce/smsdemo/internal/transport/chiserver"
	"github.com/mattjoyce/smsdemo/internal/transport/fiberserver"
	"github.com/mattjoyce/smsdemo/internal/transport/raw"
	"github.com/mattjoyce/smsdemo/internal/webhook"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	configPath string
	host       string
	port       int
	secret     string
	binding    string
	scheme     string
}

func newServeCmd() *cobra.Command {
	flags := serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath, flags.overrides(cmd))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
			if flags.configPath != "" {
				if hash, err := config.ComputeBlake3Hash(flags.configPath); err == nil {
					log.Info("configuration loaded", "path", flags.configPath, "blake3", hash)
				}
			}
			return runServe(ctx, cfg, sender.New(sender.Config{
				URL:     cfg.Send.URL,
				Timeout: cfg.Send.Timeout,
			}, log.WithComponent("sender")))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file")
	f.StringVar(&flags.host, "host", "", "Listen host (default 0.0.0.0)")
	f.IntVarP(&flags.port, "port", "p", 0, "Listen port (default 80)")
	f.StringVar(&flags.secret, "secret", "", "Shared webhook secret")
	f.StringVar(&flags.binding, "binding", "", "Server binding: raw, chi or fiber (default chi)")
	f.StringVar(&flags.scheme, "scheme", "", "Signature scheme: timestamped or legacy")
	return cmd
}

// overrides keeps only flags the user actually set, so an unset flag never
// masks the file or environment value.
func (f *serveFlags) overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{}
	changed := cmd.Flags().Changed
	if changed("host") {
		o.Host = &f.host
	}
	if changed("port") {
		o.Port = &f.port
	}
	if changed("secret") {
		o.Secret = &f.secret
	}
	if changed("binding") {
		o.Binding = &f.binding
	}
	if changed("scheme") {
		o.Scheme = &f.scheme
	}
	return o
}

// runServe wires the flow to the configured binding and blocks until ctx is
// cancelled or the server fails.
func runServe(ctx context.Context, cfg *config.Config, s sender.Sender) error {
	logger := log.WithComponent("main")
	logger.Info("smsdemo starting",
		"version", version,
		"binding", cfg.Server.Binding,
		"scheme", cfg.Webhook.Scheme,
		"listen", cfg.Addr(),
		"max_body_size", cfg.MaxBodyBytes(),
		"secret_fingerprint", cfg.SecretFingerprint(),
	)

	wcfg, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}

	opts := []webhook.Option{webhook.WithRecorder(metrics.ForBinding(cfg.Server.Binding))}
	if cfg.Replay.Path != "" {
		guard, err := replay.Open(ctx, cfg.Replay.Backend, cfg.Replay.Path)
		if err != nil {
			return fmt.Errorf("failed to open replay guard: %w", err)
		}
		defer guard.Close()
		logger.Info("replay guard enabled", "backend", cfg.Replay.Backend, "path", cfg.Replay.Path)

		go replay.RunPruner(ctx, guard, cfg.Replay.Retention, 0, func(err error) {
			logger.Warn("replay prune failed", "error", err)
		})
		opts = append(opts, webhook.WithReplayGuard(guard))
	}

	flow, err := webhook.NewFlow(wcfg, s, log.WithComponent("webhook"), opts...)
	if err != nil {
		return err
	}

	srv, err := newServer(cfg.Server.Binding, cfg.Addr(), flow, log.WithBinding(cfg.Server.Binding))
	if err != nil {
		return err
	}

	if err := metrics.Start(ctx, cfg.Service.MetricsListen, log.WithComponent("metrics")); err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("smsdemo stopped")
	return nil
}

func newServer(binding, addr string, flow *webhook.Flow, logger *slog.Logger) (transport.Server, error) {
	switch binding {
	case transport.BindingRaw:
		return raw.New(addr, flow, logger), nil
	case "", transport.BindingChi:
		return chiserver.New(addr, flow, logger), nil
	case transport.BindingFiber:
		return fiberserver.New(addr, flow, logger), nil
	default:
		return nil, transport.ErrUnknownBinding(binding)
	}
}

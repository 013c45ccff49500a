package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chronologos/ttyrelay/internal/config"
	"github.com/chronologos/ttyrelay/internal/relay"
	"github.com/chronologos/ttyrelay/internal/sshserver"
	"github.com/chronologos/ttyrelay/internal/transport"
	"github.com/chronologos/ttyrelay/internal/version"
	"github.com/chronologos/ttyrelay/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SSH, HTTP and native device listeners",
	Long: `Run the relay. SSH users log in on ssh_addr and are shown a pairing
command. Devices connect to http_addr (WebSocket at /ws/<token>) or, when
native_addr is set, over QUIC or TLS on that port.

Settings come from --config (TOML) and TTYRELAY_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagConfig, "config", "", "Config file path (TOML)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(cmd.ErrOrStderr(), flagLogLevel, flagLogFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "version", version.VERSION, "commit", version.Commit)
	return serve(ctx, cfg, log)
}

// serve wires every listener from cfg and runs them until ctx ends or one
// of them fails.
func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	hostKey, err := sshserver.LoadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return err
	}
	challenges, err := cfg.AuthChallenges()
	if err != nil {
		return err
	}
	var script []byte
	if cfg.BootstrapScript != "" {
		if script, err = os.ReadFile(cfg.BootstrapScript); err != nil {
			return fmt.Errorf("read bootstrap script: %w", err)
		}
	}

	preg := prometheus.NewRegistry()
	preg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := relay.NewRegistry(relay.Options{
		PairingTimeout: cfg.PairingTimeout.Duration,
		PublicURL:      cfg.PublicURL,
		ColorLevel:     cfg.Level(),
		FlushDelay:     cfg.FlushDelay.Duration,
		Log:            log,
		Metrics:        relay.NewMetrics(preg),
	})

	sshSrv := sshserver.New(sshserver.Config{
		HostKey:       hostKey,
		ServerVersion: cfg.ServerVersion,
		Greeting:      cfg.Greeting,
		Instructions:  cfg.Instructions,
		Challenges:    challenges,
		IdleTimeout:   cfg.IdleTimeout.Duration,
		Log:           log,
	}, reg.Serve)

	router := web.NewRouter(web.Options{
		Registry:  reg,
		PublicURL: cfg.PublicURL,
		Script:    script,
		Gatherer:  preg,
		Log:       log,
	})
	httpLn, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	log.Info("http listening", "addr", httpLn.Addr().String(), "public_url", cfg.PublicURL)

	var native *transport.NativeListener
	if cfg.NativeAddr != "" {
		if native, err = listenNative(cfg, log); err != nil {
			httpLn.Close()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sshSrv.ListenAndServe(ctx, cfg.SSHAddr) })
	g.Go(func() error { return web.Serve(ctx, httpLn, router) })
	if native != nil {
		g.Go(func() error {
			return native.Serve(ctx, func(ctx context.Context, kind transport.Kind, token string, c transport.Conn) {
				err := reg.HandleDevice(ctx, kind, token, c)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Debug("native device ended", "transport", kind, "err", err)
				}
			})
		})
	}

	err = g.Wait()
	if native != nil {
		native.Close()
	}
	log.Info("stopped")
	return err
}

func listenNative(cfg config.Config, log *slog.Logger) (*transport.NativeListener, error) {
	cert, err := transport.LoadOrGenerateCert(cfg.NativeCert, cfg.NativeKey)
	if err != nil {
		return nil, err
	}
	secret, err := cfg.Secret()
	if err != nil {
		return nil, err
	}
	if secret == nil {
		log.Warn("native devices are not authenticated; set device_secret to require a key")
	}
	ln, err := transport.ListenNative(cfg.NativeAddr, cert, secret, log.With("component", "native"))
	if err != nil {
		return nil, err
	}
	log.Info("native listening", "addr", cfg.NativeAddr, "port", ln.Port())
	return ln, nil
}

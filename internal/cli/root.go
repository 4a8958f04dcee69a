package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"volttest/internal/appserver"
	"volttest/internal/config"
	"volttest/internal/httpapi"
)

// options carries persistent flag values shared by the subcommands.
type options struct {
	configPath string
	logLevel   string
	appRoot    string
	host       string
	port       int
	debug      bool
	serverBin  string
	addr       string
}

// Execute runs the volttest command tree.
func Execute() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "volttest",
		Short:         "Ephemeral application server management for load tests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (yaml/json/toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.appRoot, "app-root", "", "Application root of the app under test")
	root.PersistentFlags().StringVar(&opts.host, "host", "", "Host to bind the spawned server to (default 127.0.0.1)")
	root.PersistentFlags().IntVar(&opts.port, "port", 0, "Preferred starting port (default 8000)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug diagnostics")
	root.PersistentFlags().StringVar(&opts.serverBin, "server-bin", "", "Runtime used to spawn the server (default php)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if lvl, err := zerolog.ParseLevel(opts.logLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	root.AddCommand(newServeCmd(opts), newRunCmd(opts), newCheckCmd(opts))
	return root
}

// managerConfig merges the config file (if any) with flag overrides.
func (o *options) managerConfig() (appserver.ManagerConfig, string, error) {
	var fileCfg config.Config
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return appserver.ManagerConfig{}, "", fmt.Errorf("load config: %w", err)
		}
		fileCfg = cfg
	}
	mc := appserver.ManagerConfig{
		AppRoot:      fileCfg.AppRoot,
		Host:         fileCfg.Host,
		Port:         fileCfg.Port,
		Debug:        fileCfg.Debug,
		ServerBin:    fileCfg.ServerBin,
		StartTimeout: time.Duration(fileCfg.StartTimeoutSec) * time.Second,
		StopTimeout:  time.Duration(fileCfg.StopTimeoutSec) * time.Second,
	}
	if o.appRoot != "" {
		mc.AppRoot = o.appRoot
	}
	if o.host != "" {
		mc.Host = o.host
	}
	if o.port != 0 {
		mc.Port = o.port
	}
	if o.debug {
		mc.Debug = true
	}
	if o.serverBin != "" {
		mc.ServerBin = o.serverBin
	}
	addr := fileCfg.Addr
	if o.addr != "" {
		addr = o.addr
	}
	if addr == "" {
		addr = ":9090"
	}
	return mc, addr, nil
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and manage servers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, addr, err := opts.managerConfig()
			if err != nil {
				return err
			}
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			httpapi.SetLogger(logger)

			events := appserver.NewMemoryPublisher()
			mc.Publisher = events
			mc.Logger = &logger

			reg := appserver.NewRegistry()
			reg.RegisterShutdownHandler()
			if mc.AppRoot != "" {
				m, err := reg.GetOrCreate("volttest", mc)
				if err != nil {
					return err
				}
				if err := m.Start(); err != nil {
					return err
				}
				logger.Info().Str("url", m.URL()).Msg("application server ready")
			}

			srv := &http.Server{Addr: addr, Handler: httpapi.NewMux(newAPIService(reg, events))}
			go func() {
				logger.Info().Str("addr", addr).Msg("control api listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("control api failed")
				}
			}()

			// Graceful shutdown (Ctrl+C / SIGTERM)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			reg.StopAll()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Control API listen address (default :9090)")
	return cmd
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start one application server and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, _, err := opts.managerConfig()
			if err != nil {
				return err
			}
			m, err := appserver.New(mc)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Start(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.URL())

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			return m.Stop(0)
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the application root without spawning anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, _, err := opts.managerConfig()
			if err != nil {
				return err
			}
			m, err := appserver.New(mc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", m.AppRoot())
			return nil
		},
	}
}

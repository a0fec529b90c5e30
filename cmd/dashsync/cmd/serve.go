package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HMasataka/dashsync/internal/config"
	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/internal/server"
)

var (
	servePort   int
	serveOrigin string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broadcast hub",
	Long: `Run the broadcast hub.

The hub accepts websocket connections on the configured path and relays
every update to the other open connections. The config file, if any, is
watched: a new allowed origin or log level applies without a restart.
SIGHUP reopens the log file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveOrigin, "origin", "", "allowed browser origin (overrides config)")
}

func applyServeFlags(cfg *config.Config) {
	applyRootFlags(cfg)
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveOrigin != "" {
		cfg.Server.AllowedOrigin = serveOrigin
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.Open(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := logger.Reopen(); err != nil {
					logger.Error("failed to reopen log file", "error", err)
					continue
				}
				logger.Info("log file reopened")
			}
		}
	}()

	if cfgFile != "" {
		go func() {
			err := config.Watch(ctx, cfgFile, logger.Logger, func(next *config.Config) {
				applyServeFlags(next)
				srv.ApplyConfig(next)
			})
			if err != nil {
				logger.Error("config watch stopped", "error", err)
			}
		}()
	}

	return srv.Run(ctx)
}

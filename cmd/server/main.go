package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andy6609/chat-relay/internal/chat"
	"github.com/andy6609/chat-relay/internal/config"
	"github.com/andy6609/chat-relay/internal/credential"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "chat-relay",
	Short:         "Multi-client text chat relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		// Unset flags only supply defaults; file and env still win over them.
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.String("listen", ":5555", "chat listen address")
	flags.String("websocket_listen", "", "websocket listen address (disabled when empty)")
	flags.String("metrics_listen", ":9090", "metrics listen address (disabled when empty)")
	flags.String("database", "chat.db", "sqlite credential database")
	flags.Bool("exclude_self_from_online", false, "omit the requester from /online output")
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	store, err := credential.Open(ctx, credential.Config{
		Path:       cfg.Database,
		BcryptCost: cfg.BcryptCost,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.MetricsListen != "" {
		metricsSrv := chat.NewMetricsServer(cfg.MetricsListen)
		go func() {
			logger.Info("metrics server listening", "addr", cfg.MetricsListen)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	srv := chat.NewServer(cfg.ServerOptions(), store, logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	srv.Stop()
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

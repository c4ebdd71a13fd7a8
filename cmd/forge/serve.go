package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inference HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Dispatcher.Close()

			klog.InfoS("Starting forge",
				"version", version,
				"model", cfg.Models.Default,
				"batchSize", cfg.Inference.BatchSize,
				"maxConcurrent", cfg.Inference.MaxConcurrent,
				"cache", cfg.Cache.Enabled,
			)
			return server.New(cfg, svc, version).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen")
	return cmd
}

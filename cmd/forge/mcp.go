package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/benchstore"
	"github.com/pario-ai/forge/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve forge tools to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Dispatcher.Close()

			var history benchstore.Store
			if cfg.Performance.HistoryDB != "" {
				store, err := benchstore.New(cfg.Performance.HistoryDB)
				if err != nil {
					return err
				}
				defer store.Close()
				history = store
			}

			// stdout carries the protocol; logs go to stderr.
			klog.InfoS("Starting MCP server", "version", version)
			return mcp.New(svc, history, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/forge/pkg/loader"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and fetch models",
	}
	cmd.AddCommand(newModelInfoCmd(), newModelPullCmd(), newModelListCmd())
	return cmd
}

func newModelInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <dir>",
		Short: "Print metadata from a model directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := loader.ReadMetadata(args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Model type:\t%s\n", md.ModelType)
			fmt.Fprintf(w, "Hidden size:\t%d\n", md.HiddenSize)
			fmt.Fprintf(w, "Attention heads:\t%d\n", md.NumAttentionHeads)
			fmt.Fprintf(w, "Hidden layers:\t%d\n", md.NumHiddenLayers)
			return w.Flush()
		},
	}
}

func newModelPullCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "pull <name>",
		Short: "Download a model into the model cache directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}

			repos := map[string]string{}
			for _, m := range cfg.Models.Available {
				repos[m.Name] = m.Repo
			}
			l := loader.New(loader.NewHubDownloader(cfg.Models.HubURL, repos))

			path, err := l.Load(cmd.Context(), args[0], cfg.Models.CacheDir, true)
			if err != nil {
				return err
			}
			fmt.Printf("Model %s available at %s\n", args[0], path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newModelListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if len(cfg.Models.Available) == 0 {
				fmt.Println("No models configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTASK\tREPO\tDEFAULT")
			for _, m := range cfg.Models.Available {
				def := ""
				if m.Name == cfg.Models.Default {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, m.Task, m.Repo, def)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

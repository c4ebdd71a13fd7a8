package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/benchstore"
	"github.com/pario-ai/forge/pkg/dispatch"
	"github.com/pario-ai/forge/pkg/engine"
	"github.com/pario-ai/forge/pkg/models"
	"github.com/pario-ai/forge/pkg/stats"
)

// benchOptions describes one synthetic benchmark run.
type benchOptions struct {
	Model    string
	Requests int
	Words    int
}

// runBenchmark pushes synthetic texts through d and times every unit.
func runBenchmark(ctx context.Context, d *dispatch.Dispatcher, backend engine.Backend, pre engine.Preprocessor, opts benchOptions) (stats.Result, error) {
	texts := make([]string, opts.Requests)
	for i := range texts {
		texts[i] = fmt.Sprintf("request %d %s", i, strings.Repeat("sample ", opts.Words))
	}

	b := stats.NewBenchmark()
	b.Start()

	_, err := dispatch.Process(ctx, d, texts, func(ctx context.Context, text string) ([]float32, error) {
		start := time.Now()
		v, err := backend.Infer(ctx, opts.Model, pre.Apply(text))
		if err != nil {
			return nil, err
		}
		return v, b.Record(time.Since(start))
	})
	if err != nil {
		return stats.Result{}, fmt.Errorf("run benchmark: %w", err)
	}
	return b.Finish()
}

func newBenchCmd() *cobra.Command {
	var (
		configPath string
		opts       benchOptions
		history    bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic inference benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Requests <= 0 {
				return fmt.Errorf("--requests must be positive")
			}
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if opts.Model == "" {
				opts.Model = cfg.Models.Default
			}

			d, err := dispatch.New(cfg.Inference.BatchSize, cfg.Inference.MaxConcurrent)
			if err != nil {
				return err
			}
			defer d.Close()

			pre := engine.Preprocessor{Lowercase: true, RemoveSpecialChars: true, MaxInputLength: cfg.Inference.MaxLength}
			klog.InfoS("Running benchmark", "model", opts.Model, "requests", opts.Requests)

			res, err := runBenchmark(cmd.Context(), d, engine.NewHashingBackend(cfg.Inference.Dimensions), pre, opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Requests:\t%d\n", res.TotalRequests)
			fmt.Fprintf(w, "Duration:\t%s\n", res.TotalDuration)
			fmt.Fprintf(w, "Throughput:\t%.1f req/s\n", res.ThroughputReqPerSec)
			fmt.Fprintf(w, "Latency avg:\t%.3f ms\n", res.AvgLatencyMs)
			fmt.Fprintf(w, "Latency min/max:\t%.3f / %.3f ms\n", res.MinLatencyMs, res.MaxLatencyMs)
			fmt.Fprintf(w, "Latency p50/p95/p99:\t%.3f / %.3f / %.3f ms\n", res.P50LatencyMs, res.P95LatencyMs, res.P99LatencyMs)
			if err := w.Flush(); err != nil {
				return err
			}

			if !history && !cfg.Performance.EnableBenchmarking {
				return nil
			}
			store, err := benchstore.New(cfg.Performance.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			rec := toRecord(opts.Model, d, res)
			if err := store.Record(cmd.Context(), &rec); err != nil {
				return err
			}
			fmt.Printf("Recorded run %s\n", rec.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model name (default: models.default)")
	cmd.Flags().IntVarP(&opts.Requests, "requests", "n", 1000, "number of requests")
	cmd.Flags().IntVar(&opts.Words, "words", 32, "words per synthetic input")
	cmd.Flags().BoolVar(&history, "history", false, "record the run in the benchmark history")

	cmd.AddCommand(newBenchHistoryCmd())
	return cmd
}

func toRecord(model string, d *dispatch.Dispatcher, res stats.Result) models.BenchmarkRecord {
	return models.BenchmarkRecord{
		Model:               model,
		BatchSize:           d.BatchSize(),
		MaxConcurrent:       d.MaxConcurrent(),
		TotalRequests:       res.TotalRequests,
		DurationMs:          float64(res.TotalDuration) / float64(time.Millisecond),
		AvgLatencyMs:        res.AvgLatencyMs,
		MinLatencyMs:        res.MinLatencyMs,
		MaxLatencyMs:        res.MaxLatencyMs,
		ThroughputReqPerSec: res.ThroughputReqPerSec,
		P50LatencyMs:        res.P50LatencyMs,
		P95LatencyMs:        res.P95LatencyMs,
		P99LatencyMs:        res.P99LatencyMs,
	}
}

func newBenchHistoryCmd() *cobra.Command {
	var (
		configPath string
		model      string
		limit      int
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded benchmark runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}

			store, err := benchstore.New(cfg.Performance.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

			if summary {
				sums, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}
				if len(sums) == 0 {
					fmt.Println("No benchmark runs recorded.")
					return nil
				}
				fmt.Fprintln(w, "MODEL\tRUNS\tREQUESTS\tAVG REQ/S\tBEST P99\tWORST P99")
				for _, s := range sums {
					fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%.3f\t%.3f\n",
						s.Model, s.Runs, s.TotalRequests, s.AvgThroughput, s.BestP99LatencyMs, s.WorstP99LatencyMs)
				}
				return w.Flush()
			}

			runs, err := store.List(cmd.Context(), model, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No benchmark runs recorded.")
				return nil
			}
			fmt.Fprintln(w, "ID\tTIME\tMODEL\tBATCH\tCONC\tREQUESTS\tREQ/S\tP50\tP95\tP99")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f\t%.3f\t%.3f\t%.3f\n",
					r.ID[:8], r.CreatedAt.Format("2006-01-02T15:04:05"), r.Model, r.BatchSize, r.MaxConcurrent,
					r.TotalRequests, r.ThroughputReqPerSec, r.P50LatencyMs, r.P95LatencyMs, r.P99LatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&summary, "summary", false, "aggregate runs per model")
	return cmd
}

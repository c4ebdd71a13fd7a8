package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var version = "dev"

// klogFlags holds the klog flags registered on the root command.
var klogFlags = flag.NewFlagSet("klog", flag.ExitOnError)

func main() {
	root := &cobra.Command{
		Use:          "forge",
		Short:        "Forge: model inference serving with batching, caching and metrics",
		Version:      version,
		SilenceUsage: true,
	}

	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(
		newServeCmd(),
		newBenchCmd(),
		newModelCmd(),
		newConfigCmd(),
		newMCPCmd(),
	)

	err := root.Execute()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

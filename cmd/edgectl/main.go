package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var host string

func main() {
	root := &cobra.Command{
		Use:           "edgectl",
		Short:         "Client for the edgeflowd inference bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&host, "host", envOr("EDGEFLOW_HOST", "http://127.0.0.1:8080"), "Base URL of the edgeflowd server")

	root.AddCommand(newInferCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newHealthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

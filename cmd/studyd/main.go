// Package main is the entry point for the studyd daemon and its client commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "studyd",
		Short:        "Trial coordination service for distributed hyperparameter search",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		serveCmd(),
		trialsCmd(),
		optimizeCmd(),
		tokenCmd(),
	)
	return root
}

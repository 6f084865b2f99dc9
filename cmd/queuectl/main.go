// Package main provides queuectl, the operator CLI for the report queue.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "queuectl",
	Short:        "Report queue operator tool",
	Long:         "queuectl enqueues scheduled analytics report jobs and checks page type rules.",
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

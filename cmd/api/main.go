// Package main is the entry point for the voicechat server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "voicechat",
	Short: "Local voice-enabled chat client with document retrieval",
	Long: `voicechat serves a local chat client over HTTP.

It keeps chat sessions on disk, augments prompts with passages from uploaded
documents and exposes browser speech recognition and synthesis hooks.

Quick Start:
  voicechat serve                 # start the server (default)
  voicechat token --subject me    # mint an API token when JWT_SECRET is set`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(serveCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

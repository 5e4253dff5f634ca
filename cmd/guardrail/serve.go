package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dshills/guardrail/internal/stub"
)

var (
	serveAddr   string
	serveAPIKey string
	serveSlug   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local stand-in validation service",
	Long: `Runs a stub guardrail service speaking the real wire contract, backed
by a small deterministic rule set. Useful for local development and for
trying the client without a real service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []stub.Option{}
		if serveAPIKey != "" {
			opts = append(opts, stub.WithAPIKey(serveAPIKey))
		}
		if serveSlug != "" {
			opts = append(opts, stub.WithProjectSlug(serveSlug))
		}

		server := stub.New(opts...)
		fmt.Printf("stub guardrail service listening on %s\n", serveAddr)
		return http.ListenAndServe(serveAddr, server.Router())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8095", "listen address")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "require this bearer token")
	serveCmd.Flags().StringVar(&serveSlug, "project-slug", "", "accept only this project slug")
	rootCmd.AddCommand(serveCmd)
}

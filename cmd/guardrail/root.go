package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/guardrail/internal/config"
	"github.com/dshills/guardrail/internal/validate"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "guardrail",
	Short: "Client for the guardrail validation service",
	Long: `Guardrail validates source files against a remote guardrail service
and reports violations inline.

Configuration is read from guardrail.yaml (working directory or
~/.config/guardrail) and GUARDRAIL_* environment variables:

  server_url        base URL of the validation service (required)
  api_key           bearer token for authentication (optional)
  project_slug      project scope for requests (required)
  validate_on_save  validate automatically on save (default true)
  enabled           master switch (default true)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}

// loadOptions loads and validates configuration for the commands that talk
// to the service.
func loadOptions() (config.Options, error) {
	provider := config.NewProvider()
	if err := provider.Load(configPath); err != nil {
		return config.Options{}, err
	}
	opts, err := provider.Options()
	if err != nil {
		return config.Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return config.Options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}

// newClient builds a validation client from the loaded options.
func newClient(opts config.Options) *validate.Client {
	return validate.NewClient(validate.ClientConfig{
		Enabled:        opts.Enabled,
		ServerURL:      opts.ServerURL,
		APIKey:         opts.APIKey,
		ProjectSlug:    opts.ProjectSlug,
		ValidateOnSave: opts.ValidateOnSave,
		RequestTimeout: opts.RequestTimeout,
		Retry: validate.RetryPolicy{
			MaxAttempts: opts.Retry.MaxAttempts,
			BaseDelay:   opts.Retry.BaseDelay,
			MaxDelay:    opts.Retry.MaxDelay,
			Multiplier:  opts.Retry.Multiplier,
		},
	})
}

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/guardrail/internal/validate"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the connection to the validation service",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}

		client := newClient(opts)
		defer client.Shutdown()

		ctx, cancel := context.WithTimeout(cmd.Context(), opts.RequestTimeout)
		defer cancel()

		state, err := client.TestConnection(ctx)
		printState(state)
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		return nil
	},
}

func printState(state validate.ConnectionState) {
	switch state.Status {
	case validate.StatusConnected:
		color.Green("● %s", state.Status)
	case validate.StatusDegraded:
		color.Yellow("● %s (%d consecutive failures)", state.Status, state.ConsecutiveFailures)
	default:
		color.Red("● %s", state.Status)
	}
	if state.LastError != nil {
		fmt.Printf("  last error: %v\n", state.LastError)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/guardrail/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate files against the guardrail service",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}

		client := newClient(opts)
		defer client.Shutdown()

		failed := false
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			client.OpenResource(path, string(content))
			result, err := client.ValidateFile(cmd.Context(), path)
			client.CloseResource(path)

			if err != nil {
				if errors.Is(err, validate.ErrUnavailable) {
					color.Yellow("%s: validation unavailable", path)
					failed = true
					continue
				}
				return err
			}
			printResult(path, result)
			for _, v := range result.Violations {
				if v.Severity == validate.SeverityError {
					failed = true
				}
			}
		}

		if failed {
			return errors.New("validation reported errors")
		}
		return nil
	},
}

func printResult(path string, result *validate.ValidationResult) {
	if len(result.Violations) == 0 {
		color.Green("%s: clean", path)
		return
	}
	fmt.Printf("%s: %d violation(s)\n", path, len(result.Violations))
	for _, v := range result.Violations {
		level := severityPrinter(v.Severity)
		level("  %d:%d %s [%s]", v.Range.Start.Line, v.Range.Start.Character, v.Message, v.RuleID)
		for _, fix := range v.Fixes {
			fmt.Printf("      fix: %s\n", fix.Label)
		}
	}
}

func severityPrinter(s validate.Severity) func(format string, a ...any) {
	switch s {
	case validate.SeverityError:
		return color.Red
	case validate.SeverityWarning:
		return color.Yellow
	default:
		return color.Cyan
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package main

import (
	"fmt"

	"github.com/aretw0/menuflow/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file-or-dir>",
	Short: "Check automation files for consistency",
	Long: `Loads every automation, reports broken menu references and warns about
menus that cannot be rendered on one of the automation's channels.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.Validate(args[0], cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Automations are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

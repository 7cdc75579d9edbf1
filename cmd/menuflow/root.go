package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "menuflow",
	Short: "Menuflow runs menu-driven conversational automations",
	Long: `Menuflow answers customer messages on WhatsApp, Messenger, Instagram and the
website widget with configurable menus, and hands off to an assistant or a
human when the flow cannot resolve the conversation.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

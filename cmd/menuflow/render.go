package main

import (
	"encoding/json"

	"github.com/aretw0/menuflow/internal/cli"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <file-or-dir> <automation-id> <menu-id>",
	Short: "Print a menu as a channel would receive it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetString("channel")
		msg, err := cli.Preview(args[0], args[1], args[2], domain.Channel(channel))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(msg)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringP("channel", "c", string(domain.ChannelWhatsApp), "Channel to render for (whatsapp, messenger, instagram, website)")
}

package main

import (
	"context"
	"fmt"

	"github.com/aretw0/menuflow/internal/cli"
	"github.com/aretw0/menuflow/internal/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Starts the engine behind an HTTP server. Settings come from MENUFLOW_*
environment variables, optionally read from a .env file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		cfg, err := config.Load(files...)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}
		if path, _ := cmd.Flags().GetString("automations"); path != "" {
			cfg.AutomationsPath = path
		}

		logger, err := cli.NewLogger(cfg)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		svc, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to init menuflow: %w", err)
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Error("shutdown", "err", err)
			}
		}()

		if err := svc.Run(ctx); err != nil {
			return err
		}
		logger.Info("menuflow stopped", "signal", fmt.Sprint(ctx.Signal()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("env-file", "", "Read settings from this .env file")
	serveCmd.Flags().String("addr", "", "Listen address (overrides MENUFLOW_ADDR)")
	serveCmd.Flags().StringP("automations", "a", "", "Automation file or directory (overrides MENUFLOW_AUTOMATIONS)")
}
